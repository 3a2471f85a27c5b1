// Package core contains the session storage domain: reactive cells, the
// process-local and durable key-value layers, the unified store that keeps
// them in sync across execution contexts, the single-shot expiry timer, and
// the session token lifecycle built on top of them. Backend adapters depend
// on this package; core must not depend on any concrete storage adapter.
package core
