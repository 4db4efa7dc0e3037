// Package internal contains the core implementation packages for comicshare.
//
// # Package Organization
//
// The internal packages are organized by functional domain, leaves first:
//
//   - errors: Structured ShareError type with typed constructors and predicates
//   - logging: Structured logging over log/slog with component scoping
//   - version: Build version and peer protocol revision
//   - stats: Per-client usage counters with lock-light snapshots
//   - access: Private-network gate keyed on the caller address
//   - cache: Generic LRU cache with per-key futures and deferred disposal
//   - provider: Book content sources (CBZ archives and directories)
//   - catalog: Live library, lists, smart queries, updates and codecs
//   - share: Share modes and the scoped view of the live catalog
//   - imaging: Page and thumbnail pipeline with memory pools
//   - config: Viper-backed configuration, validation and the setup wizard
//   - server: Per-share services on one TLS binding
//   - watcher: Debounced file watching for configuration reloads
//
// # Request Flow
//
// A peer request reaches the host, is routed to the service of its share,
// passes the access gate and the share secret, and is answered from the
// scoped catalog. Book content is opened through the provider cache and
// transformed by the imaging pipeline.
package internal
