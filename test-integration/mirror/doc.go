// Package integration contains end-to-end tests of the content-mirror server.
//
// Each test starts the real HTTP server with a SQLite store against a fake upstream that
// implements the delta sync API, so sync rounds, cursor persistence and link resolution
// run exactly as in production.
package integration
