// Package sync implements the table-agnostic pull/push synchronization engine.
//
// Clients pull changes since a checkpoint and push batches of change envelopes
// back. Every entity type is served by one generic Reader/Applier pair bound to
// its store collection and registered under a table name:
//
//	registry := sync.NewRegistry()
//	registry.Register(sync.NewTable[schema.Category, *schema.Category]("Categories", categories, sync.TableOptions{}))
//	engine := sync.New(sync.Config{Registry: registry, Authority: authority})
//
// Requests go through Engine: the table is resolved case-insensitively, the
// caller's roles are checked against the table's RequiredRole before any store
// access, and the read or apply is delegated to the table.
//
// Checkpoints come from the Authority, which is also the clock the store uses
// to stamp records. The pull boundary is inclusive so a record written at the
// checkpoint instant is delivered (possibly twice); consumers must be
// idempotent.
//
// Each envelope in a push is applied in its own fault boundary. Failures land
// in ApplyResult.PerItemErrors and never abort the rest of the batch. Updates
// are compare-and-swap on the record's row version unless the table runs the
// last-write-wins policy.
package sync
