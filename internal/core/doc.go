// Package core manages open JSON documents.
//
// It sits between the transports (the stdio worker, the HTTP API and the
// CLI) and the engine packages, and holds no transport concerns itself.
//
// # Sessions
//
// [Service.Open] starts a [Session] for an [ingest.Source]: an ingest
// pipeline (preview pass plus full pass) writing into a fresh row store,
// a pager and a searcher over that store, and a set of subscribers
// receiving pipeline events. Every session has an ID (a UUID) that the
// transports hand to clients.
//
//	sess, err := svc.Open(ctx, src, core.OpenOptions{Preview: true})
//	events, unsubscribe := sess.Subscribe(0)
//	defer unsubscribe()
//	page, err := sess.Page(ctx, 0, 50)
//
// # Generations
//
// A file-backed session can be reloaded when its file changes. Reloading
// cancels the running passes and starts a new generation with its own
// store; subscribers get a "reloaded" event and must discard rows from
// earlier generations. Reloads are skipped when the decoded content has
// the same xxhash checksum as the last completed generation.
//
// # Limits
//
// Full passes share a limiter ([ingest.Limiter]); [Service.Open] waits for
// a slot. Idle sessions are closed by the janitor ([Service.StartJanitor]).
// [Service.WaitForIngest] lets shutdown wait for running passes.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - JSON001-JSON002: Document errors (invalid JSON, failed preview)
//   - FILE001-FILE006: File errors (size, missing, empty, compression)
//   - SES001-SES002: Session errors
//   - ING001-ING002: Ingest errors (busy, cancelled)
//   - PAG001, SRC001, REQ001-REQ003: Request errors
package core
