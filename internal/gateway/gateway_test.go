package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/garden-core/internal/device"
	"github.com/nerrad567/garden-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/garden-core/internal/payload"
)

// mockBus records publishes and captures the router subscription.
type mockBus struct {
	mu         sync.Mutex
	published  []publishedMsg
	handler    mqtt.MessageHandler
	publishErr error
}

type publishedMsg struct {
	topic   string
	payload string
	qos     byte
}

func (b *mockBus) Publish(topic string, data []byte, qos byte, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, publishedMsg{topic: topic, payload: string(data), qos: qos})
	return nil
}

func (b *mockBus) Subscribe(_ string, _ byte, handler mqtt.MessageHandler) error {
	b.handler = handler
	return nil
}

func (b *mockBus) lastPublished(t *testing.T) publishedMsg {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.published) == 0 {
		t.Fatal("nothing published")
	}
	return b.published[len(b.published)-1]
}

// mockDirectory is an in-memory DeviceDirectory.
type mockDirectory struct {
	mu      sync.Mutex
	devices map[string]*device.Device
	strict  bool
	touched map[string]time.Time
}

func newMockDirectory(strict bool) *mockDirectory {
	return &mockDirectory{
		devices: make(map[string]*device.Device),
		strict:  strict,
		touched: make(map[string]time.Time),
	}
}

func (d *mockDirectory) add(mac, owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[mac] = &device.Device{MAC: mac, UserID: owner, FriendlyName: device.FriendlyName(mac)}
}

func (d *mockDirectory) Resolve(_ context.Context, rawMAC string) (*device.Device, error) {
	mac, err := device.NormalizeMAC(rawMAC)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.devices[mac]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	copied := *dev
	return &copied, nil
}

func (d *mockDirectory) ResolveForIngestion(ctx context.Context, rawMAC, claimedOwner string) (*device.Device, error) {
	dev, err := d.Resolve(ctx, rawMAC)
	if err == nil {
		return dev, nil
	}
	if !errors.Is(err, device.ErrDeviceNotFound) {
		return nil, err
	}
	if d.strict {
		return nil, device.ErrUnknownDevice
	}
	mac, _ := device.NormalizeMAC(rawMAC)
	d.add(mac, claimedOwner)
	return d.Resolve(ctx, mac)
}

func (d *mockDirectory) TouchLiveness(_ context.Context, mac string, seen time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.devices[mac]; !ok {
		return device.ErrDeviceNotFound
	}
	d.touched[mac] = seen
	return nil
}

// mockMeasurements records inserted samples.
type mockMeasurements struct {
	mu       sync.Mutex
	inserted []device.Measurement
}

func (m *mockMeasurements) Insert(_ context.Context, sample *device.Measurement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sample.ID = int64(len(m.inserted) + 1)
	m.inserted = append(m.inserted, *sample)
	return nil
}

func (m *mockMeasurements) ListByDevice(context.Context, string, int) ([]device.Measurement, error) {
	return nil, nil
}

func (m *mockMeasurements) Latest(context.Context, string) (*device.Measurement, error) {
	return nil, device.ErrDeviceNotFound
}

func (m *mockMeasurements) DeleteByDevice(context.Context, string) error { return nil }

// mockAlerts records inserted alerts.
type mockAlerts struct {
	mu       sync.Mutex
	inserted []device.Alert
}

func (m *mockAlerts) Insert(_ context.Context, alert *device.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert.ID = int64(len(m.inserted) + 1)
	m.inserted = append(m.inserted, *alert)
	return nil
}

func (m *mockAlerts) ListByDevice(context.Context, string, int) ([]device.Alert, error) {
	return nil, nil
}

func (m *mockAlerts) CountUnread(context.Context, string) (int, error) { return 0, nil }
func (m *mockAlerts) MarkRead(context.Context, int64) error            { return nil }
func (m *mockAlerts) DeleteByDevice(context.Context, string) error     { return nil }

// mockSink records broadcast events.
type mockSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *mockSink) Broadcast(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *mockSink) byType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// testGateway wires a gateway against mocks.
func testGateway(strict bool) (*Gateway, *mockBus, *mockDirectory, *mockMeasurements, *mockAlerts, *mockSink) {
	bus := &mockBus{}
	dir := newMockDirectory(strict)
	measurements := &mockMeasurements{}
	alerts := &mockAlerts{}
	sink := &mockSink{}

	g := New(bus, mqtt.Topics{Realm: "garden"}, dir, measurements, alerts)
	g.SetEventSink(sink)
	return g, bus, dir, measurements, alerts, sink
}

func TestGateway_TelemetryIngestion(t *testing.T) {
	g, _, dir, measurements, _, sink := testGateway(true)
	dir.add("AABBCCDDEEFF", "alice")

	raw := `{"device":"AABBCCDDEEFF","user":"alice","sensors":{"soil_moisture_pct":42}}`
	if err := g.HandleMessage("garden/alice/AABBCCDDEEFF/telemetry", []byte(raw)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if len(measurements.inserted) != 1 {
		t.Fatalf("inserted %d measurements, want 1", len(measurements.inserted))
	}
	m := measurements.inserted[0]
	if m.DeviceMAC != "AABBCCDDEEFF" {
		t.Errorf("DeviceMAC = %q", m.DeviceMAC)
	}
	if m.SoilMoisture == nil || *m.SoilMoisture != 42 {
		t.Errorf("SoilMoisture = %v, want 42", m.SoilMoisture)
	}
	if m.Temperature != nil {
		t.Errorf("Temperature = %v, want nil (absent)", *m.Temperature)
	}

	if _, ok := dir.touched["AABBCCDDEEFF"]; !ok {
		t.Error("liveness not touched")
	}

	events := sink.byType(EventTelemetryReceived)
	if len(events) != 1 {
		t.Fatalf("broadcast %d telemetry events, want 1", len(events))
	}
	wantChannels := []string{"device:AABBCCDDEEFF", "user:alice"}
	for i, ch := range wantChannels {
		if events[0].Channels[i] != ch {
			t.Errorf("Channels[%d] = %q, want %q", i, events[0].Channels[i], ch)
		}
	}
}

func TestGateway_TelemetrySecondsAgo(t *testing.T) {
	g, _, dir, measurements, _, _ := testGateway(true)
	dir.add("AABBCCDDEEFF", "alice")

	raw := `{"device":"AABBCCDDEEFF","seconds_ago":60,"sensors":{"air_temperature_c":21.5}}`
	before := time.Now().UTC()
	if err := g.HandleMessage("garden/alice/AABBCCDDEEFF/telemetry", []byte(raw)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	m := measurements.inserted[0]
	want := before.Add(-60 * time.Second)
	if m.Timestamp.Before(want.Add(-time.Second)) || m.Timestamp.After(want.Add(2*time.Second)) {
		t.Errorf("Timestamp = %v, want ~%v", m.Timestamp, want)
	}
}

func TestGateway_StrictDropsUnknownDevice(t *testing.T) {
	g, _, _, measurements, _, sink := testGateway(true)

	raw := `{"device":"AABBCCDDEEFF","user":"alice","sensors":{"soil_moisture_pct":42}}`
	if err := g.HandleMessage("garden/alice/AABBCCDDEEFF/telemetry", []byte(raw)); err != nil {
		t.Fatalf("HandleMessage() error = %v, want silent drop", err)
	}
	if len(measurements.inserted) != 0 {
		t.Errorf("inserted %d measurements from unknown device, want 0", len(measurements.inserted))
	}
	if len(sink.events) != 0 {
		t.Errorf("broadcast %d events from unknown device, want 0", len(sink.events))
	}
}

func TestGateway_PermissiveAutoRegisters(t *testing.T) {
	g, _, dir, measurements, _, _ := testGateway(false)

	raw := `{"device":"AABBCCDDEEFF","user":"alice","sensors":{"soil_moisture_pct":42}}`
	if err := g.HandleMessage("garden/alice/AABBCCDDEEFF/telemetry", []byte(raw)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if len(measurements.inserted) != 1 {
		t.Fatalf("inserted %d measurements, want 1", len(measurements.inserted))
	}
	dev, err := dir.Resolve(context.Background(), "AABBCCDDEEFF")
	if err != nil {
		t.Fatalf("device not auto-registered: %v", err)
	}
	if dev.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", dev.UserID)
	}
}

func TestGateway_AlertIngestion(t *testing.T) {
	g, _, dir, _, alerts, sink := testGateway(true)
	dir.add("AABBCCDDEEFF", "alice")

	raw := `{"device":"AABBCCDDEEFF","code":"water_level_critical","severity":"critical","message":"Tank empty"}`
	if err := g.HandleMessage("garden/alice/AABBCCDDEEFF/alert", []byte(raw)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if len(alerts.inserted) != 1 {
		t.Fatalf("inserted %d alerts, want 1", len(alerts.inserted))
	}
	a := alerts.inserted[0]
	if a.Code != "water_level_critical" || a.Severity != "critical" {
		t.Errorf("alert = %+v", a)
	}
	if a.Read {
		t.Error("alert landed read, want unread")
	}

	if len(sink.byType(EventAlertRaised)) != 1 {
		t.Error("alert event not broadcast")
	}

	// Duplicates become separate rows.
	if err := g.HandleMessage("garden/alice/AABBCCDDEEFF/alert", []byte(raw)); err != nil {
		t.Fatalf("duplicate HandleMessage() error = %v", err)
	}
	if len(alerts.inserted) != 2 {
		t.Errorf("inserted %d alerts after duplicate, want 2", len(alerts.inserted))
	}
}

func TestGateway_HeartbeatTouchesLiveness(t *testing.T) {
	g, _, dir, _, _, sink := testGateway(true)
	dir.add("AABBCCDDEEFF", "alice")

	raw := `{"device":"AABBCCDDEEFF","user":"alice"}`
	if err := g.HandleMessage("garden/alice/AABBCCDDEEFF/capabilities", []byte(raw)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if _, ok := dir.touched["AABBCCDDEEFF"]; !ok {
		t.Error("liveness not touched by heartbeat")
	}
	if len(sink.byType(EventDeviceOnline)) != 1 {
		t.Error("device.online event not broadcast")
	}
}

func TestGateway_DropsUnrecognisedAndMalformed(t *testing.T) {
	g, _, dir, measurements, alerts, _ := testGateway(true)
	dir.add("AABBCCDDEEFF", "alice")

	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"unrecognised kind", "garden/alice/AABBCCDDEEFF/firmware/update", `{}`},
		{"outbound echo", "garden/alice/AABBCCDDEEFF/command/water", `{}`},
		{"malformed topic", "garden/telemetry", `{}`},
		{"wrong realm", "orchard/alice/AABBCCDDEEFF/telemetry", `{"device":"AABBCCDDEEFF"}`},
		{"malformed telemetry json", "garden/alice/AABBCCDDEEFF/telemetry", `{"device":`},
		{"telemetry missing device", "garden/alice/AABBCCDDEEFF/telemetry", `{"sensors":{}}`},
		{"malformed alert json", "garden/alice/AABBCCDDEEFF/alert", `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.HandleMessage(tt.topic, []byte(tt.payload)); err != nil {
				t.Errorf("HandleMessage() error = %v, want silent drop", err)
			}
		})
	}

	if len(measurements.inserted) != 0 || len(alerts.inserted) != 0 {
		t.Errorf("dropped messages persisted rows: %d measurements, %d alerts",
			len(measurements.inserted), len(alerts.inserted))
	}
}

func TestGateway_SendWaterCommand(t *testing.T) {
	g, bus, dir, _, _, _ := testGateway(true)
	dir.add("AABBCCDDEEFF", "alice")
	ctx := context.Background()

	t.Run("without duration sends empty payload", func(t *testing.T) {
		if err := g.SendWaterCommand(ctx, "aa:bb:cc:dd:ee:ff", nil); err != nil {
			t.Fatalf("SendWaterCommand() error = %v", err)
		}
		msg := bus.lastPublished(t)
		if msg.topic != "garden/alice/AABBCCDDEEFF/command/water" {
			t.Errorf("topic = %q", msg.topic)
		}
		if msg.payload != "{}" {
			t.Errorf("payload = %q, want {}", msg.payload)
		}
	})

	t.Run("with duration", func(t *testing.T) {
		duration := 10
		if err := g.SendWaterCommand(ctx, "AABBCCDDEEFF", &duration); err != nil {
			t.Fatalf("SendWaterCommand() error = %v", err)
		}
		msg := bus.lastPublished(t)
		if msg.payload != `{"duration":10}` {
			t.Errorf("payload = %q, want duration field", msg.payload)
		}
	})

	t.Run("zero duration treated as device default", func(t *testing.T) {
		duration := 0
		if err := g.SendWaterCommand(ctx, "AABBCCDDEEFF", &duration); err != nil {
			t.Fatalf("SendWaterCommand() error = %v", err)
		}
		if msg := bus.lastPublished(t); msg.payload != "{}" {
			t.Errorf("payload = %q, want {}", msg.payload)
		}
	})

	t.Run("unresolvable device", func(t *testing.T) {
		err := g.SendWaterCommand(ctx, "FFFFFFFFFFFF", nil)
		if !errors.Is(err, device.ErrDeviceNotFound) {
			t.Errorf("error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestGateway_SendMeasureCommand(t *testing.T) {
	g, bus, dir, _, _, _ := testGateway(true)
	dir.add("AABBCCDDEEFF", "alice")
	ctx := context.Background()

	if err := g.SendMeasureCommand(ctx, "AABBCCDDEEFF", []string{"soil_moisture_pct"}); err != nil {
		t.Fatalf("SendMeasureCommand() error = %v", err)
	}
	msg := bus.lastPublished(t)
	if msg.topic != "garden/alice/AABBCCDDEEFF/command/read" {
		t.Errorf("topic = %q", msg.topic)
	}
	if !strings.Contains(msg.payload, "soil_moisture_pct") {
		t.Errorf("payload = %q, want field selector", msg.payload)
	}

	if err := g.SendMeasureCommand(ctx, "AABBCCDDEEFF", nil); err != nil {
		t.Fatalf("SendMeasureCommand() error = %v", err)
	}
	if msg := bus.lastPublished(t); msg.payload != "{}" {
		t.Errorf("payload = %q, want {} for all-sensors read", msg.payload)
	}
}

func TestGateway_UpdateAndResetSettings(t *testing.T) {
	g, bus, dir, _, _, _ := testGateway(true)
	dir.add("AABBCCDDEEFF", "alice")
	ctx := context.Background()

	soil := 35
	if err := g.UpdateSettings(ctx, "AABBCCDDEEFF", &payload.Settings{SoilMin: &soil}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	msg := bus.lastPublished(t)
	if msg.topic != "garden/alice/AABBCCDDEEFF/settings" {
		t.Errorf("topic = %q", msg.topic)
	}
	// Partial update carries only the set field.
	if msg.payload != `{"soil_min":35}` {
		t.Errorf("payload = %q, want sparse snapshot", msg.payload)
	}

	if err := g.ResetSettings(ctx, "AABBCCDDEEFF"); err != nil {
		t.Fatalf("ResetSettings() error = %v", err)
	}
	msg = bus.lastPublished(t)
	if msg.topic != "garden/alice/AABBCCDDEEFF/settings/reset" {
		t.Errorf("topic = %q", msg.topic)
	}
	if msg.payload != "{}" {
		t.Errorf("payload = %q, want {}", msg.payload)
	}
}

func TestGateway_RequestSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("response completes the read", func(t *testing.T) {
		g, bus, dir, _, _, _ := testGateway(true)
		dir.add("AABBCCDDEEFF", "alice")

		done := make(chan struct{})
		go func() {
			defer close(done)
			// Simulate the device answering on settings/state shortly
			// after the get request goes out.
			for i := 0; i < 100; i++ {
				bus.mu.Lock()
				n := len(bus.published)
				bus.mu.Unlock()
				if n > 0 {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}
			state := `{"soil_min":30,"watering_duration_sec":5}`
			if err := g.HandleMessage("garden/alice/AABBCCDDEEFF/settings/state", []byte(state)); err != nil {
				t.Errorf("HandleMessage() error = %v", err)
			}
		}()

		start := time.Now()
		snapshot, err := g.RequestSettings(ctx, "AABBCCDDEEFF")
		if err != nil {
			t.Fatalf("RequestSettings() error = %v", err)
		}
		<-done

		if snapshot.SoilMin == nil || *snapshot.SoilMin != 30 {
			t.Errorf("SoilMin = %v, want 30", snapshot.SoilMin)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("RequestSettings() took %v, want prompt return on response", elapsed)
		}

		msg := bus.published[0]
		if msg.topic != "garden/alice/AABBCCDDEEFF/settings/get" {
			t.Errorf("request topic = %q", msg.topic)
		}
		if msg.payload != "{}" {
			t.Errorf("request payload = %q, want {}", msg.payload)
		}
	})

	t.Run("timeout returns ErrSettingsTimeout", func(t *testing.T) {
		g, _, dir, _, _, _ := testGateway(true)
		dir.add("AABBCCDDEEFF", "alice")
		g.SetSettingsTimeout(50 * time.Millisecond)

		start := time.Now()
		_, err := g.RequestSettings(ctx, "AABBCCDDEEFF")
		if !errors.Is(err, ErrSettingsTimeout) {
			t.Fatalf("error = %v, want ErrSettingsTimeout", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("timed out after %v, want close to the 50ms deadline", elapsed)
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		g, _, _, _, _, _ := testGateway(true)
		_, err := g.RequestSettings(ctx, "FFFFFFFFFFFF")
		if !errors.Is(err, device.ErrDeviceNotFound) {
			t.Errorf("error = %v, want ErrDeviceNotFound", err)
		}
	})

	t.Run("publish failure evicts pending", func(t *testing.T) {
		g, bus, dir, _, _, _ := testGateway(true)
		dir.add("AABBCCDDEEFF", "alice")
		bus.publishErr = errors.New("broker gone")

		if _, err := g.RequestSettings(ctx, "AABBCCDDEEFF"); err == nil {
			t.Fatal("RequestSettings() succeeded with failing publish")
		}
		if g.correlator.PendingCount() != 0 {
			t.Errorf("PendingCount() = %d after failed publish, want 0", g.correlator.PendingCount())
		}
	})
}
