package session

import "math"

// Parameter ranges derived from intensity.
const (
	MinDensity    = 0.1
	MaxDensity    = 0.9
	MinBrightness = 0.2
	MaxBrightness = 0.8
	MinWeight     = 0.1
	MaxWeight     = 1.0
)

// Parameters are the musical parameters recomputed from intensity on every
// tick. CalmWeight and IntenseWeight are complementary: they only meet their
// floor together when intensity sits exactly on a boundary.
type Parameters struct {
	BPM           int
	Density       float64
	Brightness    float64
	CalmWeight    float64
	IntenseWeight float64
}

// ParametersFor derives the full parameter set for a wave session at the
// given intensity.
func ParametersFor(intensity float64) Parameters {
	intensity = clamp01(intensity)

	return Parameters{
		BPM:           MinBPM + int(math.Round(intensity*float64(MaxWaveBPM-MinBPM))),
		Density:       MinDensity + intensity*(MaxDensity-MinDensity),
		Brightness:    MinBrightness + intensity*(MaxBrightness-MinBrightness),
		CalmWeight:    math.Max(1-intensity, MinWeight),
		IntenseWeight: math.Max(intensity, MinWeight),
	}
}

// ClampFreePlayBPM bounds a user-supplied free-play tempo to the extended
// range.
func ClampFreePlayBPM(bpm int) int {
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxFreePlayBPM {
		return MaxFreePlayBPM
	}
	return bpm
}
