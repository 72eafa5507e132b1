// Package api defines the public data model shared by the engine, the
// dispatcher, the client, and the HTTP server: instance identities, history
// events and their payloads, folded instance state, and request/response
// shapes
package api
