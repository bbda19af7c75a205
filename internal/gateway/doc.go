// Package gateway routes device bus traffic and dispatches commands.
//
// A single wildcard subscription covers the whole realm. Inbound
// messages are classified by topic suffix and fanned out to typed
// handlers:
//
//	telemetry       -> measurement ingestion
//	alert           -> alert ingestion
//	capabilities    -> heartbeat/liveness touch
//	settings/state  -> settings correlator completion
//
// Unrecognised suffixes and malformed payloads are logged and dropped;
// nothing inbound is ever fatal to the router.
//
// Outbound, the gateway publishes watering/measure commands and settings
// writes to owner-scoped device topics, and implements synchronous
// settings reads over the asynchronous bus: RequestSettings publishes a
// get request, parks the caller on a pending completion keyed by device
// identity, and wakes it when the matching settings/state response
// arrives or the deadline passes.
package gateway
