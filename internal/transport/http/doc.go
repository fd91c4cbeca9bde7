// Package http contains the HTTP transport layer: the cloud licensing
// server's handlers (identity token endpoint, organization license issuance,
// health, metrics) and the self-hosted agent's local surface. Handlers bind
// and render with go-chi/render and answer failures as RFC 7807 problem
// details.
package http
