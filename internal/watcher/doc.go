// Package watcher turns native filesystem notifications on the monitored
// directories into a debounced stream of index-relevant events.
//
// Two strategies back the stream:
//   - fsnotify, the event-based primary
//   - polling, the fallback where fsnotify cannot deliver (network
//     mounts, some container volume drivers)
//
// NewHybridWatcher starts with fsnotify and degrades to polling when the
// native watch fails. Events on the same path within the debounce window
// are coalesced (see Debouncer), and every path is screened by the
// directory filter before it reaches the indexer: ignore-file patterns,
// the configured blacklist and whitelist, max depth, the per-directory
// file cap, max file size, and the symlink policy. A directory the filter
// rejects wholesale surfaces as a single OpDirSkipped event carrying the
// reason instead of being dropped silently.
package watcher
