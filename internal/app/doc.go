// Package app composes the sentinel services into a running application.
//
// Domain models live under domain/, persistence behind the interfaces in
// storage/ with memory and postgres implementations, business rules under
// services/, and the HTTP surface in httpapi/. Background work runs through
// tasks/ (worker and scheduler) and realtime/ fans new alerts out to
// websocket clients. runtime/ turns configuration into live database, cache
// and HTTP server handles for the web, worker and beat processes.
package app
