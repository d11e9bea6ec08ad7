// Package repositories implements SQLite persistence for the template API server and the client's local storage.
//
// Key Implementations:
//   - [TemplateRepository] : Owner-scoped template CRUD with exclusive default flags
//   - [BindingRepository] : Owner-scoped (channel, card) bindings with update-or-insert semantics
//   - [LocalStorage] : Durable key/value pairs (migration flags and legacy template blobs)
//
// Ownership failures are reported with [shared.ErrNotFound] and [shared.ErrForbidden]; payload
// validation failures wrap [shared.ErrInvalidInput]. Every mutation that touches more than one row
// runs in a single transaction.
//
// IDs are v4 UUIDs from [shared.GenerateID]. Timestamps are stored in UTC.
package repositories
