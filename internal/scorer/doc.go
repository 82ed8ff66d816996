// Package scorer implements the Scorer: a deterministic weighted linear
// combination over named features of a Lead Pool Record and Assignment,
// mapped to a 0-100 score and band via domain.BandFor, per spec §4.7.
//
// The weight vector a score is computed against falls back through three
// levels: a tenant's learned weights (from Pattern Records eligible per
// §4.11's confidence/sample-size gate), then platform-wide learned
// weights, then hardcoded defaults. The scorer itself is a pure function
// of its inputs — it holds no state and makes no I/O calls — so the same
// (features, weights) pair always produces the same score.
package scorer
