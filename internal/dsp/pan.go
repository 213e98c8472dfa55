package dsp

import "math"

// PanScales computes constant-power stereo pan scales for a mono
// source: pan in [-1, 1] maps to p = (pan+1)/2 in [0,1], theta =
// p*pi/2, scaleL = cos(theta), scaleR = sin(theta). pan=0 yields
// approximately 0.7071 on both channels.
func PanScales(pan float32) (scaleL, scaleR float32) {
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}
	p := (float64(pan) + 1) / 2
	theta := p * math.Pi / 2
	return float32(math.Cos(theta)), float32(math.Sin(theta))
}
