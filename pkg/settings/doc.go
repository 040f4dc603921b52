// Package settings persists gateway runtime state, primarily the set of
// credentials the upstream has confirmed invalid.
//
// Three backends implement the Store interface:
//
//   - MemoryStore: no persistence; tests and ephemeral deployments.
//   - FileStore: one YAML file, replaced atomically on write.
//   - SQLiteStore: one row per invalid credential; merges write only the
//     delta. For large key inventories.
//
// The invalid set follows union semantics everywhere: merges never remove
// members, identical merges perform no write, and the only way the set
// shrinks is an explicit operator reset.
package settings
