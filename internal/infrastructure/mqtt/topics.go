package mqtt

import (
	"fmt"
	"strings"
)

// Topic grammar (compatibility-critical — the controllers are flashed with
// the same scheme):
//
//	{realm}/{owner}/{mac}/{kind}[/{subkind}]
//
// Inbound kinds:  telemetry, alert, capabilities, settings/state
// Outbound kinds: command/water, command/read, settings/get, settings,
//                 settings/reset
//
// mac is the normalised device identity (12 uppercase hex chars, no colons).

// Topics provides builders for device-scoped bus topics within a realm.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Realm: "garden"}
//	topics.Telemetry("alice", "AABBCCDDEEFF")
//	// Returns: "garden/alice/AABBCCDDEEFF/telemetry"
type Topics struct {
	Realm string
}

// =============================================================================
// Inbound Topics (device -> backend)
// =============================================================================

// Telemetry returns the topic a device publishes sensor samples to.
//
// Example: garden/alice/AABBCCDDEEFF/telemetry
func (t Topics) Telemetry(owner, mac string) string {
	return fmt.Sprintf("%s/%s/%s/telemetry", t.Realm, owner, mac)
}

// Alert returns the topic a device publishes alert events to.
//
// Example: garden/alice/AABBCCDDEEFF/alert
func (t Topics) Alert(owner, mac string) string {
	return fmt.Sprintf("%s/%s/%s/alert", t.Realm, owner, mac)
}

// Capabilities returns the heartbeat/capability advertisement topic.
//
// Example: garden/alice/AABBCCDDEEFF/capabilities
func (t Topics) Capabilities(owner, mac string) string {
	return fmt.Sprintf("%s/%s/%s/capabilities", t.Realm, owner, mac)
}

// SettingsState returns the topic a device answers settings reads on.
//
// Example: garden/alice/AABBCCDDEEFF/settings/state
func (t Topics) SettingsState(owner, mac string) string {
	return fmt.Sprintf("%s/%s/%s/settings/state", t.Realm, owner, mac)
}

// =============================================================================
// Outbound Topics (backend -> device)
// =============================================================================

// CommandWater returns the watering command topic.
//
// Example: garden/alice/AABBCCDDEEFF/command/water
func (t Topics) CommandWater(owner, mac string) string {
	return fmt.Sprintf("%s/%s/%s/command/water", t.Realm, owner, mac)
}

// CommandRead returns the on-demand measurement command topic.
//
// Example: garden/alice/AABBCCDDEEFF/command/read
func (t Topics) CommandRead(owner, mac string) string {
	return fmt.Sprintf("%s/%s/%s/command/read", t.Realm, owner, mac)
}

// SettingsGet returns the settings-read request topic.
//
// Example: garden/alice/AABBCCDDEEFF/settings/get
func (t Topics) SettingsGet(owner, mac string) string {
	return fmt.Sprintf("%s/%s/%s/settings/get", t.Realm, owner, mac)
}

// Settings returns the partial-settings-update topic. The device merges the
// sparse payload into its own configuration.
//
// Example: garden/alice/AABBCCDDEEFF/settings
func (t Topics) Settings(owner, mac string) string {
	return fmt.Sprintf("%s/%s/%s/settings", t.Realm, owner, mac)
}

// SettingsReset returns the settings-reset topic. An empty payload tells the
// device to restore its own firmware defaults.
//
// Example: garden/alice/AABBCCDDEEFF/settings/reset
func (t Topics) SettingsReset(owner, mac string) string {
	return fmt.Sprintf("%s/%s/%s/settings/reset", t.Realm, owner, mac)
}

// =============================================================================
// Wildcard Patterns for Subscriptions and Grants
// =============================================================================

// All returns a pattern matching every topic in the realm.
// The gateway router subscribes to this once.
//
// Pattern: garden/#
func (t Topics) All() string {
	return t.Realm + "/#"
}

// DeviceSubtree returns the access-grant pattern scoping one device to its
// own topic subtree, regardless of owner segment. The owner segment stays a
// wildcard so a grant survives ownership transfer without rewriting.
//
// Pattern: garden/+/AABBCCDDEEFF/#
func (t Topics) DeviceSubtree(mac string) string {
	return fmt.Sprintf("%s/+/%s/#", t.Realm, mac)
}

// ParsedTopic is the result of decomposing a device-scoped topic.
type ParsedTopic struct {
	Owner string
	MAC   string
	// Kind is the suffix after the mac segment, e.g. "telemetry",
	// "settings/state", "command/water".
	Kind string
}

// ParseDeviceTopic decomposes "{realm}/{owner}/{mac}/{kind...}".
//
// Returns ErrInvalidTopic when the topic does not belong to the realm or is
// missing segments. The caller decides whether the kind is one it handles.
func (t Topics) ParseDeviceTopic(topic string) (ParsedTopic, error) {
	const minSegments = 4 // realm/owner/mac/kind

	parts := strings.Split(topic, "/")
	if len(parts) < minSegments {
		return ParsedTopic{}, fmt.Errorf("%w: %q has too few segments", ErrInvalidTopic, topic)
	}
	if parts[0] != t.Realm {
		return ParsedTopic{}, fmt.Errorf("%w: %q is outside realm %q", ErrInvalidTopic, topic, t.Realm)
	}
	if parts[1] == "" || parts[2] == "" {
		return ParsedTopic{}, fmt.Errorf("%w: %q has empty owner or device segment", ErrInvalidTopic, topic)
	}

	return ParsedTopic{
		Owner: parts[1],
		MAC:   parts[2],
		Kind:  strings.Join(parts[3:], "/"),
	}, nil
}
