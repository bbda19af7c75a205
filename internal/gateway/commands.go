package gateway

import (
	"context"
	"fmt"

	"github.com/nerrad567/garden-core/internal/payload"
)

// SendWaterCommand publishes a watering command to a device.
//
// A positive duration overrides the device's configured watering
// duration; otherwise an empty payload is sent and the device decides.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - rawMAC: Device identity in any accepted wire form
//   - duration: Optional watering duration in seconds
//
// Returns:
//   - error: device.ErrDeviceNotFound if the identity cannot be
//     resolved to an owner, or a publish error
func (g *Gateway) SendWaterCommand(ctx context.Context, rawMAC string, duration *int) error {
	dev, err := g.directory.Resolve(ctx, rawMAC)
	if err != nil {
		return err
	}

	cmd := &payload.WaterCommand{}
	if duration != nil && *duration > 0 {
		cmd.Duration = duration
	}

	topic := g.topics.CommandWater(dev.UserID, dev.MAC)
	if err := g.publishJSON(topic, cmd); err != nil {
		return fmt.Errorf("publishing water command: %w", err)
	}

	g.logger.Info("water command sent", "mac", dev.MAC, "duration", duration)
	return nil
}

// SendMeasureCommand asks a device for an immediate sensor read.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - rawMAC: Device identity in any accepted wire form
//   - fields: Optional subset of sensors to read; empty reads all
//
// Returns:
//   - error: device.ErrDeviceNotFound or a publish error
func (g *Gateway) SendMeasureCommand(ctx context.Context, rawMAC string, fields []string) error {
	dev, err := g.directory.Resolve(ctx, rawMAC)
	if err != nil {
		return err
	}

	topic := g.topics.CommandRead(dev.UserID, dev.MAC)
	if err := g.publishJSON(topic, &payload.MeasureCommand{Fields: fields}); err != nil {
		return fmt.Errorf("publishing measure command: %w", err)
	}

	g.logger.Info("measure command sent", "mac", dev.MAC)
	return nil
}

// RequestSettings retrieves a device's current settings over the bus.
//
// Publishes an empty get request and blocks the calling context until
// the matching settings/state response arrives or the configured
// deadline passes. The message router is never blocked by a waiting
// caller.
//
// Parameters:
//   - ctx: Caller's context (HTTP request scope)
//   - rawMAC: Device identity in any accepted wire form
//
// Returns:
//   - *payload.Settings: The device's snapshot
//   - error: device.ErrDeviceNotFound, ErrSettingsTimeout, a publish
//     error, or the context error
func (g *Gateway) RequestSettings(ctx context.Context, rawMAC string) (*payload.Settings, error) {
	dev, err := g.directory.Resolve(ctx, rawMAC)
	if err != nil {
		return nil, err
	}

	// Register before publishing so a fast response cannot beat the
	// pending entry.
	pending := g.correlator.Register(dev.MAC)

	topic := g.topics.SettingsGet(dev.UserID, dev.MAC)
	if err := g.publishJSON(topic, nil); err != nil {
		g.correlator.Evict(dev.MAC)
		return nil, fmt.Errorf("publishing settings request: %w", err)
	}

	snapshot, err := g.correlator.Await(ctx, pending, g.settingsTimeout)
	if err != nil {
		g.logger.Warn("settings read did not complete", "mac", dev.MAC, "error", err)
		return nil, err
	}

	return snapshot, nil
}

// UpdateSettings publishes a partial settings snapshot to a device.
// The device merges it into its own configuration; unspecified fields
// stay untouched.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - rawMAC: Device identity in any accepted wire form
//   - snapshot: Sparse settings to apply
//
// Returns:
//   - error: device.ErrDeviceNotFound or a publish error
func (g *Gateway) UpdateSettings(ctx context.Context, rawMAC string, snapshot *payload.Settings) error {
	dev, err := g.directory.Resolve(ctx, rawMAC)
	if err != nil {
		return err
	}

	topic := g.topics.Settings(dev.UserID, dev.MAC)
	if err := g.publishJSON(topic, snapshot); err != nil {
		return fmt.Errorf("publishing settings update: %w", err)
	}

	g.logger.Info("settings update sent", "mac", dev.MAC)
	return nil
}

// ResetSettings tells a device to restore its own firmware defaults.
// The backend does not know what those defaults are; it only signals
// the reset with an empty payload on the dedicated topic.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - rawMAC: Device identity in any accepted wire form
//
// Returns:
//   - error: device.ErrDeviceNotFound or a publish error
func (g *Gateway) ResetSettings(ctx context.Context, rawMAC string) error {
	dev, err := g.directory.Resolve(ctx, rawMAC)
	if err != nil {
		return err
	}

	topic := g.topics.SettingsReset(dev.UserID, dev.MAC)
	if err := g.publishJSON(topic, nil); err != nil {
		return fmt.Errorf("publishing settings reset: %w", err)
	}

	g.logger.Info("settings reset sent", "mac", dev.MAC)
	return nil
}
