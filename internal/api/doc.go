// Package api provides the HTTP REST API and WebSocket server for Garden Core.
//
// It exposes device commands, settings reads/writes, provisioning and
// read-only history to user-facing clients (mobile app, web dashboard),
// and fans gateway events out to WebSocket subscribers.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
