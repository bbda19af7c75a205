package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/garden-core/internal/device"
	"github.com/nerrad567/garden-core/internal/infrastructure/mqtt"
)

// Default operational parameters.
const (
	defaultSettingsTimeout = 5 * time.Second
	defaultQoS             = 1

	// handlerTimeout bounds the database work done for one inbound message.
	handlerTimeout = 10 * time.Second
)

// Bus is the transport surface the gateway needs. Implemented by
// *mqtt.Client; mocked in tests.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// DeviceDirectory resolves device identities during routing and command
// dispatch. Implemented by *device.Directory.
type DeviceDirectory interface {
	Resolve(ctx context.Context, rawMAC string) (*device.Device, error)
	ResolveForIngestion(ctx context.Context, rawMAC, claimedOwner string) (*device.Device, error)
	TouchLiveness(ctx context.Context, mac string, seen time.Time) error
}

// TelemetryMirror receives a copy of each ingested sample. Implemented
// by *influxdb.Client; optional.
type TelemetryMirror interface {
	WriteTelemetry(mac, owner string, fields map[string]interface{}, ts time.Time)
}

// Logger defines the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Gateway routes inbound device messages and dispatches outbound
// commands. See the package documentation for the message flow.
type Gateway struct {
	bus          Bus
	topics       mqtt.Topics
	directory    DeviceDirectory
	measurements device.MeasurementRepository
	alerts       device.AlertRepository
	correlator   *Correlator

	mirror TelemetryMirror
	events EventSink
	logger Logger

	qos             byte
	settingsTimeout time.Duration
}

// New creates a gateway.
//
// Parameters:
//   - bus: Connected message transport
//   - topics: Topic grammar for the configured realm
//   - directory: Device identity resolver
//   - measurements: Sample persistence
//   - alerts: Alert persistence
func New(
	bus Bus,
	topics mqtt.Topics,
	directory DeviceDirectory,
	measurements device.MeasurementRepository,
	alerts device.AlertRepository,
) *Gateway {
	return &Gateway{
		bus:             bus,
		topics:          topics,
		directory:       directory,
		measurements:    measurements,
		alerts:          alerts,
		correlator:      NewCorrelator(),
		events:          noopSink{},
		logger:          noopLogger{},
		qos:             defaultQoS,
		settingsTimeout: defaultSettingsTimeout,
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

// SetEventSink sets the realtime event fan-out target.
func (g *Gateway) SetEventSink(sink EventSink) {
	g.events = sink
}

// SetTelemetryMirror sets the optional time-series mirror.
func (g *Gateway) SetTelemetryMirror(mirror TelemetryMirror) {
	g.mirror = mirror
}

// SetQoS sets the QoS level for outbound publishes.
func (g *Gateway) SetQoS(qos byte) {
	g.qos = qos
}

// SetSettingsTimeout overrides the settings-read deadline.
func (g *Gateway) SetSettingsTimeout(timeout time.Duration) {
	if timeout > 0 {
		g.settingsTimeout = timeout
	}
}

// Start subscribes the router to the realm's topic subtree. Inbound
// messages flow through HandleMessage from the transport's delivery
// goroutines.
func (g *Gateway) Start() error {
	if err := g.bus.Subscribe(g.topics.All(), g.qos, g.HandleMessage); err != nil {
		return err
	}
	g.logger.Info("gateway started", "subscription", g.topics.All())
	return nil
}

// EvictPending drops any outstanding settings read for a device.
// Called on ownership transfer.
func (g *Gateway) EvictPending(mac string) {
	g.correlator.Evict(mac)
}

// publishJSON marshals and publishes an outbound payload. A nil value
// publishes the empty JSON object.
func (g *Gateway) publishJSON(topic string, v any) error {
	data := []byte("{}")
	if v != nil {
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshalling payload for %s: %w", topic, err)
		}
	}
	return g.bus.Publish(topic, data, g.qos, false)
}
