package audio

import "math"

const (
	levelNoiseFloor      = 0.002 // combined level below this is treated as silence
	levelSpeechThreshold = 0.01
	levelDBFloor         = -40.0
	levelDBBoost         = 1.5
	levelLinearGain      = 50.0
)

// EstimateLevel maps a block of normalized samples to a [0,1] meter value.
// RMS and peak are blended so short transients still move the meter.
func EstimateLevel(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}

	var sumSquares, peak float64
	for _, s := range block {
		v := float64(s)
		sumSquares += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	rms := math.Sqrt(sumSquares / float64(len(block)))

	combined := rms*0.7 + peak*0.3
	if combined < levelNoiseFloor {
		return 0
	}

	var scaled float64
	if combined > levelSpeechThreshold {
		db := math.Max(20*math.Log10(combined), levelDBFloor)
		scaled = (db - levelDBFloor) / -levelDBFloor * levelDBBoost
	} else {
		scaled = combined * levelLinearGain
	}

	return math.Min(math.Max(scaled, 0), 1)
}
