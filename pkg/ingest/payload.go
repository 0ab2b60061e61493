// Package ingest guards the hardware ingestion boundary: it validates
// inbound telemetry payloads against numeric range constraints and
// enforces a per-device request quota.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/voltwatch/voltwatch/pkg/types"
)

const (
	maxVoltage    = 1000
	maxCurrent    = 100
	maxPower      = 100000
	minTempC      = -50
	maxTempC      = 150
	maxBattery    = 100
	maxIrradiance = 2000
	maxDeviceID   = 50
)

// Timestamp accepts either an RFC3339 string or a Unix-millisecond number,
// matching what deployed firmware already sends.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// Payload is one telemetry submission from a hardware device. Required
// numeric fields are pointers so a missing field is distinguishable from a
// zero reading.
type Payload struct {
	DeviceID        *string   `json:"deviceId"`
	Voltage         *float64  `json:"voltage"`
	Current         *float64  `json:"current"`
	Power           *float64  `json:"power"`
	TS              Timestamp `json:"ts"`
	TemperatureC    *float64  `json:"temperature"`
	BatteryLevel    *float64  `json:"batteryLevel"`
	SolarIrradiance *float64  `json:"solarIrradiance"`
}

// Validate checks the payload against the declared ranges and returns
// field-level errors. An empty map means the payload is acceptable.
func (p *Payload) Validate() map[string]string {
	errs := make(map[string]string)

	switch {
	case p.Voltage == nil:
		errs["voltage"] = "required"
	case *p.Voltage < 0 || *p.Voltage > maxVoltage:
		errs["voltage"] = fmt.Sprintf("must be between 0 and %d", maxVoltage)
	}
	switch {
	case p.Current == nil:
		errs["current"] = "required"
	case *p.Current < 0 || *p.Current > maxCurrent:
		errs["current"] = fmt.Sprintf("must be between 0 and %d", maxCurrent)
	}
	if p.Power != nil && (*p.Power < 0 || *p.Power > maxPower) {
		errs["power"] = fmt.Sprintf("must be between 0 and %d", maxPower)
	}
	if p.TemperatureC != nil && (*p.TemperatureC < minTempC || *p.TemperatureC > maxTempC) {
		errs["temperature"] = fmt.Sprintf("must be between %d and %d", minTempC, maxTempC)
	}
	if p.BatteryLevel != nil && (*p.BatteryLevel < 0 || *p.BatteryLevel > maxBattery) {
		errs["batteryLevel"] = fmt.Sprintf("must be between 0 and %d", maxBattery)
	}
	if p.SolarIrradiance != nil && (*p.SolarIrradiance < 0 || *p.SolarIrradiance > maxIrradiance) {
		errs["solarIrradiance"] = fmt.Sprintf("must be between 0 and %d", maxIrradiance)
	}
	if p.DeviceID != nil && (len(*p.DeviceID) == 0 || len(*p.DeviceID) > maxDeviceID) {
		errs["deviceId"] = fmt.Sprintf("must be between 1 and %d characters", maxDeviceID)
	}
	return errs
}

// Key returns the rate-limit key for this payload: the device identifier,
// defaulted when the payload omits it.
func (p *Payload) Key() string {
	if p.DeviceID == nil || *p.DeviceID == "" {
		return types.DefaultDeviceID
	}
	return *p.DeviceID
}

// Point builds the TelemetryPoint to persist, resolving the timestamp to
// now when the payload omits it and computing power as voltage*current
// rounded to 3 decimals when not supplied. Validate must have passed.
func (p *Payload) Point(now time.Time) types.TelemetryPoint {
	ts := p.TS.Time
	if ts.IsZero() {
		ts = now
	}
	power := p.voltage() * p.current()
	if p.Power != nil {
		power = *p.Power
	}
	return types.TelemetryPoint{
		TS:              ts,
		DeviceID:        p.Key(),
		Voltage:         p.voltage(),
		Current:         p.current(),
		Power:           types.Round3(power),
		Source:          types.SourceHardware,
		TemperatureC:    p.TemperatureC,
		BatteryLevel:    p.BatteryLevel,
		SolarIrradiance: p.SolarIrradiance,
		IngestedAt:      now,
	}
}

func (p *Payload) voltage() float64 {
	if p.Voltage == nil {
		return 0
	}
	return *p.Voltage
}

func (p *Payload) current() float64 {
	if p.Current == nil {
		return 0
	}
	return *p.Current
}
