package dsp

// MixMonoToStereo sums a mono source into a stereo bus with independently
// ramped left/right scales. scaleL/scaleR are the values at sample 0;
// dScaleL/dScaleR are added after every sample so gain/pan changes
// linearly across the buffer.
func MixMonoToStereo(outL, outR, in []float32, n int, scaleL, scaleR, dScaleL, dScaleR float32) {
	for i := 0; i < n; i++ {
		v := in[i]
		outL[i] += v * scaleL
		outR[i] += v * scaleR
		scaleL += dScaleL
		scaleR += dScaleR
	}
}

// MixStereoToStereo sums a stereo source into a stereo bus with
// matrix-diagonal panning: left input feeds left output only, right
// feeds right output only. This preserves imaging of natively stereo
// sources rather than cross-panning them.
func MixStereoToStereo(outL, outR, inL, inR []float32, n int, gainL, gainR, dGainL, dGainR float32) {
	for i := 0; i < n; i++ {
		outL[i] += inL[i] * gainL
		outR[i] += inR[i] * gainR
		gainL += dGainL
		gainR += dGainR
	}
}

// ResampleAndMixMonoToStereo combines the polyphase filter with ramped
// mono-to-stereo mixing in one pass. in must have HISTORY=4 valid samples
// before base+pos.Index() and FUTURE=4 after the last consumed sample.
// Returns the updated position; when delta is 0 it returns pos unchanged
// and writes nothing.
func ResampleAndMixMonoToStereo(outL, outR []float32, in []float32, base int64, pos Pos, delta uint64, n int, scaleL, scaleR, dScaleL, dScaleR float32) Pos {
	if delta == 0 {
		return pos
	}
	for i := 0; i < n; i++ {
		v := Resample1(in, base, pos)
		outL[i] += v * scaleL
		outR[i] += v * scaleR
		scaleL += dScaleL
		scaleR += dScaleR
		pos, _ = pos.Advance(delta)
	}
	return pos
}

// ResampleAndMixStereoToStereo is ResampleAndMixMonoToStereo's stereo
// counterpart: the left and right input channels are each resampled and
// mixed diagonally.
func ResampleAndMixStereoToStereo(outL, outR []float32, inL, inR []float32, base int64, pos Pos, delta uint64, n int, gainL, gainR, dGainL, dGainR float32) Pos {
	if delta == 0 {
		return pos
	}
	p := pos
	for i := 0; i < n; i++ {
		vL := Resample1(inL, base, p)
		vR := Resample1(inR, base, p)
		outL[i] += vL * gainL
		outR[i] += vR * gainR
		gainL += dGainL
		gainR += dGainR
		p, _ = p.Advance(delta)
	}
	return p
}

// IdentityMixMonoToStereo is the fast path used when delta == IdentityDelta
// and pos carries no fraction: no filtering, just ramped gain.
func IdentityMixMonoToStereo(outL, outR, in []float32, n int, scaleL, scaleR, dScaleL, dScaleR float32) {
	MixMonoToStereo(outL, outR, in, n, scaleL, scaleR, dScaleL, dScaleR)
}

// IdentityMixStereoToStereo is MixStereoToStereo's identity-path alias,
// named separately so mixer call sites make the fast-path branch
// explicit.
func IdentityMixStereoToStereo(outL, outR, inL, inR []float32, n int, gainL, gainR, dGainL, dGainR float32) {
	MixStereoToStereo(outL, outR, inL, inR, n, gainL, gainR, dGainL, dGainR)
}

// ApplyClampedGain adds in, scaled by a linearly ramped gain, into out —
// used by the master bus to sum each non-master group.
// Neither the gain nor the output values are clamped here; clamping to
// the device's numeric range happens at the final format-conversion step.
func ApplyClampedGain(out, in []float32, n int, gain, dGain float32) {
	for i := 0; i < n; i++ {
		out[i] += in[i] * gain
		gain += dGain
	}
}
