// Package domain defines the core business types for the dispatch subsystem.
//
// Types in this package are pure value objects with no behavior beyond
// simple predicates, no database dependencies, and no HTTP concerns. They
// are the shared language between engines, repositories, and the
// orchestration layer.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Predicate methods (IsTerminal, IsActive, ...) are allowed
//   - Constants and enums belong here
package domain
