// Package core contains the marketplace domain model, store contracts, and the
// orchestration logic for orders, proposals, and notification fan-out.
// Storage, transport, and queue adapters depend on this package; core must not
// depend on any of them.
package core
