package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/garden-core/internal/device"
	"github.com/nerrad567/garden-core/internal/payload"
)

// handleAlert ingests one alert event.
//
// Duplicates are never coalesced; every inbound alert becomes a new
// row. Read-state belongs to the query side, so alerts always land
// unread.
func (g *Gateway) handleAlert(ctx context.Context, topicOwner string, data []byte, received time.Time) error {
	a, err := payload.ParseAlert(data)
	if err != nil {
		g.logger.Warn("dropping malformed alert", "error", err)
		return nil
	}

	dev, ok, err := g.resolveSender(ctx, a.Device, a.User, topicOwner)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	alert := &device.Alert{
		DeviceMAC: dev.MAC,
		Timestamp: a.EffectiveTimestamp(received),
		Code:      a.Code,
		Severity:  a.Severity,
		Subsystem: a.Subsystem,
		Message:   a.Message,
		Details:   a.Details,
	}

	if err := g.alerts.Insert(ctx, alert); err != nil {
		return fmt.Errorf("persisting alert for %s: %w", dev.MAC, err)
	}

	if err := g.directory.TouchLiveness(ctx, dev.MAC, received); err != nil {
		g.logger.Error("liveness touch failed", "mac", dev.MAC, "error", err)
	}

	g.events.Broadcast(Event{
		Type:      EventAlertRaised,
		Device:    dev.MAC,
		Owner:     dev.UserID,
		Data:      alert,
		Timestamp: received,
		Channels:  []string{DeviceChannel(dev.MAC), UserChannel(dev.UserID)},
	})

	g.logger.Warn("device alert",
		"mac", dev.MAC, "code", alert.Code, "severity", alert.Severity, "message", alert.Message)
	return nil
}

// handleHeartbeat processes a capabilities/heartbeat advertisement.
// Only liveness matters; capability detail is not persisted.
func (g *Gateway) handleHeartbeat(ctx context.Context, topicOwner string, data []byte, received time.Time) error {
	h, err := payload.ParseHeartbeat(data)
	if err != nil {
		g.logger.Warn("dropping malformed heartbeat", "error", err)
		return nil
	}

	dev, ok, err := g.resolveSender(ctx, h.Device, h.User, topicOwner)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := g.directory.TouchLiveness(ctx, dev.MAC, received); err != nil {
		return fmt.Errorf("liveness touch for %s: %w", dev.MAC, err)
	}

	g.events.Broadcast(Event{
		Type:      EventDeviceOnline,
		Device:    dev.MAC,
		Owner:     dev.UserID,
		Timestamp: received,
		Channels:  []string{DeviceChannel(dev.MAC), UserChannel(dev.UserID)},
	})

	g.logger.Debug("heartbeat", "mac", dev.MAC)
	return nil
}

// handleSettingsState completes a pending settings read with the
// device's response. Unsolicited responses are discarded quietly.
func (g *Gateway) handleSettingsState(rawMAC string, data []byte) error {
	mac, err := device.NormalizeMAC(rawMAC)
	if err != nil {
		g.logger.Warn("dropping settings state with invalid identity", "raw", rawMAC)
		return nil
	}

	snapshot, err := payload.ParseSettings(data)
	if err != nil {
		g.logger.Warn("dropping malformed settings state", "mac", mac, "error", err)
		return nil
	}

	if g.correlator.Complete(mac, snapshot) {
		g.logger.Debug("settings read completed", "mac", mac)
	} else {
		g.logger.Debug("unsolicited settings state discarded", "mac", mac)
	}
	return nil
}
