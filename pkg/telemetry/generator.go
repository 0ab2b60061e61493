package telemetry

import (
	"math"
	"math/rand"
	"time"

	"github.com/voltwatch/voltwatch/pkg/types"
)

const (
	// historySpan is how far back a generated series reaches.
	historySpan = 24 * time.Hour
	// liveSpan is the most recent window generated at fine resolution.
	liveSpan = 10 * time.Minute

	coarseStep = 60 * time.Second
	fineStep   = 10 * time.Second

	// daylightEpsilon is the intensity below which the panel is treated as
	// fully dark and all channels read exactly zero.
	daylightEpsilon = 1e-3
)

// Profile describes the electrical envelope of a simulated panel.
type Profile struct {
	// VoltageBase is the open-air baseline voltage at zero daylight.
	VoltageBase float64
	// VoltageGain scales daylight intensity into added voltage.
	VoltageGain float64
	// VoltageMin and VoltageMax clamp generated voltage to a plausible range.
	VoltageMin float64
	VoltageMax float64
	// MaxPowerW caps generated power.
	MaxPowerW float64
	// MaxCurrentA caps generated current.
	MaxCurrentA float64
	// MiddayHour is the hour-of-day at the center of the daylight curve.
	MiddayHour float64
}

// SmallPanelProfile models a small USB-class solar panel.
func SmallPanelProfile() Profile {
	return Profile{
		VoltageBase: 5.1,
		VoltageGain: 1.2,
		VoltageMin:  4.8,
		VoltageMax:  6.7,
		MaxPowerW:   10,
		MaxCurrentA: 2,
		MiddayHour:  12,
	}
}

// OpenRigProfile models a larger rig without a tight voltage clamp.
func OpenRigProfile() Profile {
	return Profile{
		VoltageBase: 18,
		VoltageGain: 6,
		VoltageMin:  0,
		VoltageMax:  1000,
		MaxPowerW:   200,
		MaxCurrentA: 8,
		MiddayHour:  12,
	}
}

// Generator produces plausible solar telemetry series. It is pure apart
// from the injected random source and cannot fail.
type Generator struct {
	profile Profile
	rng     *rand.Rand
}

// NewGenerator creates a Generator for the given profile. A nil rng falls
// back to a time-seeded source.
func NewGenerator(profile Profile, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{profile: profile, rng: rng}
}

// Generate returns a series spanning the 24 hours before now: 60s steps up
// to now-10m, then 10s steps through now. Timestamps are strictly
// ascending with no duplicates, and the coarse band ends strictly before
// the fine band begins.
//
// The daylight curve is phase-shifted so now always evaluates at midday
// intensity; a series generated at local midnight still shows output at
// its newest samples instead of an all-zero chart.
func (g *Generator) Generate(now time.Time) []types.TelemetryPoint {
	start := now.Add(-historySpan)
	liveStart := now.Add(-liveSpan)
	shift := g.profile.MiddayHour - hourOfDay(now)

	// 24h/60s plus 10m/10s, plus the inclusive endpoint.
	points := make([]types.TelemetryPoint, 0, 24*60+10*6+1)

	for t := start; t.Before(liveStart); t = t.Add(coarseStep) {
		points = append(points, g.point(t, shift, false))
	}
	for t := liveStart; !t.After(now); t = t.Add(fineStep) {
		points = append(points, g.point(t, shift, true))
	}
	return points
}

func (g *Generator) point(t time.Time, shift float64, fine bool) types.TelemetryPoint {
	daylight := daylight(hourOfDay(t) + shift)

	p := types.TelemetryPoint{
		TS:       t,
		DeviceID: types.DemoDeviceID,
		Source:   types.SourceDemo,
	}
	if daylight < daylightEpsilon {
		// Nighttime shutdown: exact zeros, not residual noise.
		return p
	}

	voltage := g.profile.VoltageBase + daylight*g.profile.VoltageGain
	if fine {
		// Slow sinusoidal wobble plus a narrow jitter band for a live feel.
		voltage += math.Sin(float64(t.UnixMilli())/30_000)*0.2 + g.jitter(-0.15, 0.15)
	} else {
		voltage += g.jitter(-0.3, 0.3)
	}
	voltage = clamp(voltage, g.profile.VoltageMin, g.profile.VoltageMax)

	targetPower := daylight*g.profile.MaxPowerW + g.jitter(0, 0.05*g.profile.MaxPowerW)
	targetPower = clamp(targetPower, 0, g.profile.MaxPowerW)
	current := clamp(targetPower/voltage, 0, g.profile.MaxCurrentA)

	p.Voltage = types.Round2(voltage)
	p.Current = types.Round2(current)
	p.Power = types.Round2(p.Voltage * p.Current)
	if p.Power > g.profile.MaxPowerW {
		p.Power = g.profile.MaxPowerW
	}
	return p
}

func (g *Generator) jitter(min, max float64) float64 {
	return min + g.rng.Float64()*(max-min)
}

// daylight maps an hour-of-day to synthetic solar intensity in [0,1]: a
// half-sine over the 12 hours centered on noon of the shifted clock, zero
// at night.
func daylight(hour float64) float64 {
	hour = math.Mod(hour, 24)
	if hour < 0 {
		hour += 24
	}
	return math.Max(0, math.Sin((hour-6)/12*math.Pi))
}

func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
