package dsp

// Format conversion kernels bridge decoder output (S8/S16/F32,
// interleaved or planar) to the mixer's internal float32 planar working
// buffers, and the master bus's float32 planar output to S16 interleaved
// for devices that want integer PCM.

// ConvertS8ToF32 expands signed 8-bit samples to float32 in [-1, 1].
func ConvertS8ToF32(dst []float32, src []int8) {
	const scale = 1.0 / 128.0
	for i, v := range src {
		dst[i] = float32(v) * scale
	}
}

// ConvertS16ToF32 expands signed 16-bit samples to float32 in [-1, 1].
func ConvertS16ToF32(dst []float32, src []int16) {
	const scale = 1.0 / 32768.0
	for i, v := range src {
		dst[i] = float32(v) * scale
	}
}

// DeinterleaveS8 splits interleaved int8 PCM into per-channel float32
// planar buffers.
func DeinterleaveS8(dst [][]float32, src []int8, channels int) {
	const scale = 1.0 / 128.0
	frames := len(src) / channels
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			dst[c][f] = float32(src[f*channels+c]) * scale
		}
	}
}

// DeinterleaveS16 splits interleaved int16 PCM into per-channel float32
// planar buffers.
func DeinterleaveS16(dst [][]float32, src []int16, channels int) {
	const scale = 1.0 / 32768.0
	frames := len(src) / channels
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			dst[c][f] = float32(src[f*channels+c]) * scale
		}
	}
}

// DeinterleaveF32 splits interleaved float32 PCM into per-channel planar
// buffers, with no scaling.
func DeinterleaveF32(dst [][]float32, src []float32, channels int) {
	frames := len(src) / channels
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			dst[c][f] = src[f*channels+c]
		}
	}
}

// ApplyGainAndInterleaveToS16 writes a ramped-gain-applied, clamped S16
// interleaved buffer from stereo float32 planar master output.
func ApplyGainAndInterleaveToS16(dst []int16, inL, inR []float32, n int, gain, dGain float32) {
	for i := 0; i < n; i++ {
		l := inL[i] * gain * 32767
		r := inR[i] * gain * 32767
		dst[2*i] = clampS16(l)
		dst[2*i+1] = clampS16(r)
		gain += dGain
	}
}

func clampS16(v float32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
