// Package dsp implements the mixer's sample-rate-conversion and
// gain/pan-ramped mixing kernels: an 8-tap polyphase resampler, mono- and
// stereo-to-stereo mixers, the gain and pan models, power/peak reporting,
// and planar/interleaved format conversion. Every kernel works on
// float32 planar buffers and a starting ramp value plus a per-sample
// delta, so gain and pan change linearly across one device buffer.
package dsp

import "math"

// Taps, Phases and FracBits size the polyphase filter bank: 8 taps per
// phase, 2048 phases addressed by the top 11 bits of a Q1.31
// fractional position.
const (
	Taps      = 8
	Phases    = 2048
	FracBits  = 11
	fracShift = 31 - FracBits // = 20
	phaseMask = Phases - 1

	// IdentityDelta is the Pos delta that advances exactly one input
	// sample per output sample with no fractional carry: the identity
	// fast path applies whenever Delta == IdentityDelta and a voice's
	// Pos has zero fraction.
	IdentityDelta uint64 = 1 << 31

	posFracMask uint64 = (1 << 31) - 1
)

// Pos is a Q33.31 fixed-point resampler position: bits [31:] are the
// integer input sample index, bits [30:0] are the fractional phase
// in [0, 2^31). Advancing by a Delta (also Q1.31, expressed as
// IdentityDelta * inRate/outRate * speed) accumulates fraction and
// carries into the integer index automatically via normal unsigned
// addition — there is no separate carry step, unlike source
// implementations that track frame_fraction and an integer index
// side by side and mask/carry by hand.
type Pos uint64

// Index returns the integer input sample position.
func (p Pos) Index() int64 { return int64(uint64(p) >> 31) }

// Frac returns the Q0.31 fractional position within the current sample.
func (p Pos) Frac() uint32 { return uint32(uint64(p) & posFracMask) }

// Phase returns the polyphase bank row for this position: the top
// FracBits bits of the fraction. Because phase only depends on the low
// fracShift+FracBits bits of p, the integer part never leaks in (its
// contribution is always a multiple of Phases and cancels under the
// mask).
func (p Pos) Phase() int {
	return int((uint64(p) >> fracShift) & phaseMask)
}

// Advance moves p forward by delta and returns the new position plus how
// many whole input samples were consumed (the Index() carry).
func (p Pos) Advance(delta uint64) (Pos, int64) {
	before := p.Index()
	next := Pos(uint64(p) + delta)
	return next, next.Index() - before
}

// coeffs holds the 8 filter taps of each polyphase bank row. Row 0 and
// row Phases-1 bracket a unit impulse. The table is generated once at
// package init from a windowed-sinc design (Hann window over the 8-tap
// support) rather than stored as 16384 literals, so all Phases rows stay
// a partition of unity to within float32 tolerance — the property the
// mixer's identity-vs-polyphase fast path depends on.
var coeffs [Phases * Taps]float32

func init() {
	for row := 0; row < Phases; row++ {
		frac := float64(row) / float64(Phases)
		taps := make([]float64, Taps)
		var sum float64
		for k := 0; k < Taps; k++ {
			x := float64(k-3) - frac
			taps[k] = sinc(x) * hann(x)
			sum += taps[k]
		}
		if sum != 0 {
			for k := range taps {
				taps[k] /= sum
			}
		}
		for k := 0; k < Taps; k++ {
			coeffs[row*Taps+k] = float32(taps[k])
		}
	}
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func hann(x float64) float64 {
	const half = float64(Taps) / 2
	if x <= -half || x >= half {
		return 0
	}
	return 0.5 + 0.5*math.Cos(math.Pi*x/half)
}

// Resample1 produces one output sample from in using the 8-tap filter at
// pos's phase. in must have a valid sample at in[idx+k] for k in
// [-3, 4]; callers arrange HISTORY=4 and FUTURE=4 padding so this always
// holds.
func Resample1(in []float32, base int64, pos Pos) float32 {
	row := pos.Phase() * Taps
	idx := base + pos.Index()
	var acc float32
	for k := 0; k < Taps; k++ {
		acc += in[int(idx)+k-3] * coeffs[row+k]
	}
	return acc
}
