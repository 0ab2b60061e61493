package types

import (
	"math"
	"time"
)

// Source identifies where a telemetry point came from.
type Source string

const (
	// SourceDemo marks synthetic points produced by the demo generator.
	SourceDemo Source = "demo"
	// SourceStored marks points read back from the document store.
	SourceStored Source = "stored"
	// SourceHardware marks points ingested from a physical device.
	SourceHardware Source = "hardware"
)

// DefaultDeviceID is used when an ingest payload omits the device identifier.
const DefaultDeviceID = "hardware-1"

// DemoDeviceID identifies points written by the demo seeder.
const DemoDeviceID = "demo-panel"

// TelemetryPoint is one timestamped voltage/current/power reading.
// Power is either supplied by the device or computed as Voltage*Current.
// Points are immutable once created.
type TelemetryPoint struct {
	TS       time.Time `json:"ts"`
	Voltage  float64   `json:"voltage"`
	Current  float64   `json:"current"`
	Power    float64   `json:"power"`
	DeviceID string    `json:"deviceID,omitempty"`
	Source   Source    `json:"source,omitempty"`

	// Optional hardware metadata, only present on ingested points.
	TemperatureC    *float64  `json:"temperature,omitempty"`
	BatteryLevel    *float64  `json:"batteryLevel,omitempty"`
	SolarIrradiance *float64  `json:"solarIrradiance,omitempty"`
	IngestedAt      time.Time `json:"ingestedAt,omitzero"`
}

// HourlyPoint is one calendar-hour average of voltage/current/power.
// TS is the timestamp of the last sample observed in that hour, not the
// hour boundary.
type HourlyPoint struct {
	TS      time.Time `json:"ts"`
	Voltage float64   `json:"voltage"`
	Current float64   `json:"current"`
	Power   float64   `json:"power"`
}

// DeviceStats summarizes the stored data for one device.
type DeviceStats struct {
	DeviceID   string    `json:"deviceID"`
	LastSeen   time.Time `json:"lastSeen,omitzero"`
	Source     Source    `json:"source"`
	DataPoints int64     `json:"dataPoints"`
}

// User represents an authenticated user as reported by the identity
// provider. The service only gates on presence, it keeps no user records.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Round2 rounds to 2 decimal places, matching the dashboard precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round3 rounds to 3 decimal places, matching the ingest precision.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
