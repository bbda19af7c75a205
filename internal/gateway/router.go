package gateway

import (
	"context"
	"time"
)

// Message kinds recognised by the router, matched against the topic
// suffix after the device segment.
const (
	kindTelemetry     = "telemetry"
	kindAlert         = "alert"
	kindCapabilities  = "capabilities"
	kindSettingsState = "settings/state"
)

// HandleMessage classifies an inbound bus message and dispatches it to
// the matching handler.
//
// Malformed topics and unrecognised kinds are logged and dropped; the
// router never propagates them as errors. Handler errors (persistence
// failures) are returned so the transport layer logs them, but they
// only affect the one message.
func (g *Gateway) HandleMessage(topic string, data []byte) error {
	received := time.Now().UTC()

	parsed, err := g.topics.ParseDeviceTopic(topic)
	if err != nil {
		g.logger.Warn("dropping message with malformed topic", "topic", topic, "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch parsed.Kind {
	case kindTelemetry:
		return g.handleTelemetry(ctx, parsed.Owner, data, received)
	case kindAlert:
		return g.handleAlert(ctx, parsed.Owner, data, received)
	case kindCapabilities:
		return g.handleHeartbeat(ctx, parsed.Owner, data, received)
	case kindSettingsState:
		return g.handleSettingsState(parsed.MAC, data)
	default:
		// Outbound kinds (command/*, settings writes) echo back through
		// the realm-wide subscription; they are not ours to handle.
		g.logger.Debug("ignoring message kind", "topic", topic, "kind", parsed.Kind)
		return nil
	}
}
