// Package core contains the shared domain types for DataStep: sessions,
// analysis steps, snapshots, step configurations, the error taxonomy, and
// the Store interface implemented by the state layer.
//
// core has no dependencies on other datastep packages so that every layer
// (engines, executor, state, CLI) can share these types without cycles.
package core
