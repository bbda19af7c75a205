package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/garden-core/internal/device"
	"github.com/nerrad567/garden-core/internal/payload"
)

// handleTelemetry ingests one sensor sample.
//
// Flow: parse, resolve device identity (unknown-device policy applies),
// persist the measurement, touch liveness, mirror to the time-series
// store, broadcast to realtime subscribers. Malformed payloads and
// unknown devices are dropped without error.
func (g *Gateway) handleTelemetry(ctx context.Context, topicOwner string, data []byte, received time.Time) error {
	t, err := payload.ParseTelemetry(data)
	if err != nil {
		g.logger.Warn("dropping malformed telemetry", "error", err)
		return nil
	}

	dev, ok, err := g.resolveSender(ctx, t.Device, t.User, topicOwner)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	m := &device.Measurement{
		DeviceMAC: dev.MAC,
		Timestamp: t.EffectiveTimestamp(received),
	}
	if t.Sensors != nil {
		m.SoilMoisture = t.Sensors.SoilMoisture
		m.Temperature = t.Sensors.Temperature
		m.Humidity = t.Sensors.Humidity
		m.Pressure = t.Sensors.Pressure
		m.LightLux = t.Sensors.LightLux
		m.WaterTankOK = t.Sensors.WaterTankOK
	}

	if err := g.measurements.Insert(ctx, m); err != nil {
		return fmt.Errorf("persisting telemetry for %s: %w", dev.MAC, err)
	}

	if err := g.directory.TouchLiveness(ctx, dev.MAC, received); err != nil {
		g.logger.Error("liveness touch failed", "mac", dev.MAC, "error", err)
	}

	if g.mirror != nil && t.Sensors != nil {
		g.mirror.WriteTelemetry(dev.MAC, dev.UserID, t.Sensors.Fields(), m.Timestamp)
	}

	g.events.Broadcast(Event{
		Type:      EventTelemetryReceived,
		Device:    dev.MAC,
		Owner:     dev.UserID,
		Data:      m,
		Timestamp: received,
		Channels:  []string{DeviceChannel(dev.MAC), UserChannel(dev.UserID)},
	})

	g.logger.Debug("telemetry ingested", "mac", dev.MAC)
	return nil
}

// resolveSender applies the unknown-device policy to an inbound
// message's identity. The payload's claimed owner wins over the topic
// segment when both are present.
//
// Returns ok=false when the message should be silently dropped.
func (g *Gateway) resolveSender(ctx context.Context, rawMAC, payloadOwner, topicOwner string) (*device.Device, bool, error) {
	claimedOwner := payloadOwner
	if claimedOwner == "" {
		claimedOwner = topicOwner
	}

	dev, err := g.directory.ResolveForIngestion(ctx, rawMAC, claimedOwner)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidMAC):
			g.logger.Warn("dropping message with invalid device identity", "raw", rawMAC)
			return nil, false, nil
		case errors.Is(err, device.ErrUnknownDevice):
			g.logger.Debug("dropping message from unregistered device", "raw", rawMAC)
			return nil, false, nil
		default:
			return nil, false, fmt.Errorf("resolving device %q: %w", rawMAC, err)
		}
	}
	return dev, true, nil
}
