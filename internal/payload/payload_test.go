package payload

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseTelemetry_PartialSensors(t *testing.T) {
	raw := []byte(`{"device":"AABBCCDDEEFF","user":"alice","sensors":{"soil_moisture_pct":42}}`)

	got, err := ParseTelemetry(raw)
	if err != nil {
		t.Fatalf("ParseTelemetry() error = %v", err)
	}

	if got.Device != "AABBCCDDEEFF" {
		t.Errorf("Device = %q, want AABBCCDDEEFF", got.Device)
	}
	if got.User != "alice" {
		t.Errorf("User = %q, want alice", got.User)
	}
	if got.Sensors == nil {
		t.Fatal("Sensors = nil, want populated")
	}
	if got.Sensors.SoilMoisture == nil || *got.Sensors.SoilMoisture != 42 {
		t.Errorf("SoilMoisture = %v, want 42", got.Sensors.SoilMoisture)
	}
	if got.Sensors.Temperature != nil {
		t.Errorf("Temperature = %v, want nil (absent)", *got.Sensors.Temperature)
	}
	if got.Sensors.WaterTankOK != nil {
		t.Errorf("WaterTankOK = %v, want nil (absent)", *got.Sensors.WaterTankOK)
	}

	fields := got.Sensors.Fields()
	if len(fields) != 1 {
		t.Errorf("Fields() returned %d entries, want 1: %v", len(fields), fields)
	}
	if fields["soil_moisture_pct"] != 42 {
		t.Errorf("Fields()[soil_moisture_pct] = %v, want 42", fields["soil_moisture_pct"])
	}
}

func TestParseTelemetry_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"device":`},
		{"missing device", `{"user":"alice","sensors":{}}`},
		{"empty device", `{"device":"","user":"alice"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTelemetry([]byte(tt.raw))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestTelemetry_EffectiveTimestamp(t *testing.T) {
	received := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	epochMillis := received.Add(-time.Hour).UnixMilli()
	secondsAgo := int64(30)

	tests := []struct {
		name      string
		telemetry Telemetry
		want      time.Time
	}{
		{
			name:      "seconds_ago wins over timestamp",
			telemetry: Telemetry{SecondsAgo: &secondsAgo, Timestamp: &epochMillis},
			want:      received.Add(-30 * time.Second),
		},
		{
			name:      "absolute timestamp",
			telemetry: Telemetry{Timestamp: &epochMillis},
			want:      time.UnixMilli(epochMillis),
		},
		{
			name:      "neither falls back to receipt time",
			telemetry: Telemetry{},
			want:      received,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.telemetry.EffectiveTimestamp(received)
			if !got.Equal(tt.want) {
				t.Errorf("EffectiveTimestamp() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseAlert(t *testing.T) {
	raw := []byte(`{"device":"AABBCCDDEEFF","code":"water_level_critical","severity":"critical","message":"Tank empty"}`)

	got, err := ParseAlert(raw)
	if err != nil {
		t.Fatalf("ParseAlert() error = %v", err)
	}
	if got.Code != "water_level_critical" {
		t.Errorf("Code = %q, want water_level_critical", got.Code)
	}
	if got.Severity != SeverityCritical {
		t.Errorf("Severity = %q, want critical", got.Severity)
	}
	if got.Message != "Tank empty" {
		t.Errorf("Message = %q, want Tank empty", got.Message)
	}
}

func TestParseAlert_LegacyMsgField(t *testing.T) {
	raw := []byte(`{"device":"AABBCCDDEEFF","code":"wifi.disconnected","msg":"lost AP"}`)

	got, err := ParseAlert(raw)
	if err != nil {
		t.Fatalf("ParseAlert() error = %v", err)
	}
	if got.Message != "lost AP" {
		t.Errorf("Message = %q, want legacy msg value", got.Message)
	}
}

func TestParseAlert_SeverityDefault(t *testing.T) {
	raw := []byte(`{"device":"AABBCCDDEEFF","code":"sensor.dht_recovered"}`)

	got, err := ParseAlert(raw)
	if err != nil {
		t.Fatalf("ParseAlert() error = %v", err)
	}
	if got.Severity != SeverityInfo {
		t.Errorf("Severity = %q, want default info", got.Severity)
	}
}

func TestParseAlert_MessageWinsOverMsg(t *testing.T) {
	raw := []byte(`{"device":"AABBCCDDEEFF","message":"current","msg":"legacy"}`)

	got, err := ParseAlert(raw)
	if err != nil {
		t.Fatalf("ParseAlert() error = %v", err)
	}
	if got.Message != "current" {
		t.Errorf("Message = %q, want current field to win", got.Message)
	}
}

func TestParseHeartbeat(t *testing.T) {
	got, err := ParseHeartbeat([]byte(`{"device":"AABBCCDDEEFF","user":"alice"}`))
	if err != nil {
		t.Fatalf("ParseHeartbeat() error = %v", err)
	}
	if got.Device != "AABBCCDDEEFF" || got.User != "alice" {
		t.Errorf("got %+v", got)
	}

	if _, err := ParseHeartbeat([]byte(`{}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("missing device error = %v, want ErrMalformedPayload", err)
	}
}

func TestParseSettings(t *testing.T) {
	raw := []byte(`{"temp_min":18.5,"soil_min":30,"watering_duration_sec":5}`)

	got, err := ParseSettings(raw)
	if err != nil {
		t.Fatalf("ParseSettings() error = %v", err)
	}
	if got.TempMin == nil || *got.TempMin != 18.5 {
		t.Errorf("TempMin = %v, want 18.5", got.TempMin)
	}
	if got.SoilMin == nil || *got.SoilMin != 30 {
		t.Errorf("SoilMin = %v, want 30", got.SoilMin)
	}
	if got.WateringDurationSeconds == nil || *got.WateringDurationSeconds != 5 {
		t.Errorf("WateringDurationSeconds = %v, want 5", got.WateringDurationSeconds)
	}
	if got.TempMax != nil {
		t.Errorf("TempMax = %v, want nil (absent)", *got.TempMax)
	}
	if got.IsEmpty() {
		t.Error("IsEmpty() = true for populated snapshot")
	}
}

func TestParseSettings_EmptyBody(t *testing.T) {
	got, err := ParseSettings([]byte(`{}`))
	if err != nil {
		t.Fatalf("ParseSettings() error = %v", err)
	}
	if !got.IsEmpty() {
		t.Errorf("IsEmpty() = false for empty snapshot: %+v", got)
	}
}

func TestSettings_PartialMarshal(t *testing.T) {
	soilMin := 25
	data, err := json.Marshal(&Settings{SoilMin: &soilMin})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"soil_min":25}` {
		t.Errorf("Marshal() = %s, want only the set field", data)
	}
}

func TestWaterCommand_EmptyWhenNoDuration(t *testing.T) {
	data, err := json.Marshal(&WaterCommand{})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{}` {
		t.Errorf("Marshal() = %s, want {}", data)
	}
}
