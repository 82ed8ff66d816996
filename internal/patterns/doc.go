// Package patterns implements the Conversion Intelligence detectors of
// spec §4.11: four families — WHO (lead attributes), WHAT (channel),
// WHEN (send timing), HOW (sequence step) — that mine closed Assignment
// history for features correlated with conversion and persist the result
// as Pattern Records gated by minimum confidence and sample size.
//
// The learning-cycle shape (ticker-driven, mutex-guarded last-run state,
// best-effort per run) follows this repository's earlier continuous
// learning engine; unlike that engine's free-form insight generation,
// detector output here is constrained to the same named feature set the
// scorer's weight vector uses, so eligible WHO lifts can directly
// supersede a scorer default (internal/scorer/weights.go) without any
// translation layer.
package patterns
