// Package nbexportsqlite provides a SQLite-backed cache store for
// go-nbexport.
//
// The store persists memoized renders across process restarts:
//
//	store, err := nbexportsqlite.Open("nbexport-cache.db")
//	if err != nil { ... }
//	engine.Cache = nbexport.NewRenderCacheWithStore(store)
//
// The schema is created lazily on first use.
package nbexportsqlite
