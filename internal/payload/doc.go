// Package payload defines the JSON wire formats exchanged with garden
// devices over MQTT.
//
// Inbound payloads (telemetry, alert, heartbeat, settings state) are
// tolerant of missing optional fields: devices report only the sensors
// they have, and firmware revisions differ in which fields they send.
// Optional values are pointers so that "absent" and "zero" stay
// distinguishable all the way to storage.
//
// Outbound payloads (commands, partial settings) serialise with
// omitempty so a partial update only carries the fields the caller set.
// The device merges; the backend never computes the merge.
//
// The only required inbound field is "device". Anything unparseable or
// missing it fails with ErrMalformedPayload and is dropped upstream.
package payload
