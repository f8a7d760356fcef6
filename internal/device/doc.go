// Package device keeps the canonical lighting device catalogue in sync
// with live device truth.
//
// # Architecture
//
//	┌──────────────┐  ListDevices/ReadState/WriteState  ┌──────────────────┐
//	│  Reconciler  │ ─────────────────────────────────▶ │ Adapter (bridge, │
//	│ (cache, per- │                                    │ mesh)            │
//	│ device locks)│ ◀── ApplyEvent (from event bus) ── └──────────────────┘
//	└──────┬───────┘
//	       │ FindDevice/UpsertDevice/UpdateState/ListDevices
//	       ▼
//	┌──────────────┐
//	│  Repository  │  SQLite (devices, rooms)
//	└──────────────┘
//
// # Rules
//
//   - A device is identified by (protocol, external id); its canonical id is
//     assigned once and never changes.
//   - Cached state is overwritten only by a successful live read, a push
//     event for that device, or an acknowledged local write. A failed read
//     never clears it.
//   - State is merged field by field; a missing field never erases a known one.
//   - SyncAll only inserts and updates. Devices leave the catalogue only
//     through Decommission.
//   - Online and state.reachable always agree.
//   - Every mutation of one device runs under that device's lock; distinct
//     devices proceed in parallel. Concurrent updates to the same field are
//     resolved by arrival order at the lock (last writer wins).
//
// Only ErrDeviceNotFound and invalid input reach callers. Adapter and
// persistence failures are logged and the cached view is served instead;
// WriteState additionally returns the adapter's write failure.
package device
