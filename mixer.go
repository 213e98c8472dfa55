package sndmix

import (
	"errors"
	"math"

	"sndmix/internal/decoder"
	"sndmix/internal/dsp"
)

// tick runs one pass of the per-tick algorithm under the core mutex:
// step all ramps, pull frames from every active voice into its group
// bus, then master the groups into the device output and queue it.
// Queue itself is called without the mutex held.
func (s *SoundSystem) tick() error {
	if s.audioInterrupted.Load() {
		s.mu.Lock()
		if s.deviceStarted {
			s.device.Stop()
			s.deviceStarted = false
		}
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	anyActive := false
	s.voices.Each(func(_ Handle, v *Voice) {
		if v.playing {
			anyActive = true
		}
	})
	if !anyActive && !s.deviceStarted {
		s.mu.Unlock()
		return ErrNothingToPlay
	}
	if !s.deviceStarted {
		if err := s.device.Start(); err != nil {
			s.mu.Unlock()
			return ErrInitError
		}
		s.deviceStarted = true
	}

	free := s.device.FreeBufferSlots()
	if free == 0 {
		s.mu.Unlock()
		return nil
	}
	s.stepRampsLocked()

	for i := uint32(0); i < free; i++ {
		frames := s.frameCount
		if avail := s.device.AvailableFrames(); avail > 0 && int(avail) < frames {
			frames = int(avail)
		}
		if frames == 0 {
			break
		}

		for _, hash := range s.groupOrder {
			g := s.groups[hash]
			clearFloat(g.mixL[:frames])
			clearFloat(g.mixR[:frames])
		}

		s.voices.Each(func(_ Handle, v *Voice) {
			if !v.playing {
				return
			}
			g, ok := s.groups[v.group]
			if !ok {
				return
			}
			s.mixInstance(v, g, frames)
		})

		buf := s.outBuf[s.outPos]
		s.masterTick(buf, frames)
		s.outPos = (s.outPos + 1) % len(s.outBuf)

		device := s.device
		s.mu.Unlock()
		err := device.Queue(buf, frames)
		s.mu.Lock()
		if err != nil {
			// INIT_ERROR bubbles up and flags the device stopped so the
			// next tick restarts it; any other queue error is logged and
			// the tick stays alive.
			if errors.Is(err, ErrInitError) {
				s.deviceStarted = false
				s.mu.Unlock()
				return ErrInitError
			}
			s.logWarn("device queue failed", "err", err)
		}
	}
	s.mu.Unlock()
	return nil
}

func clearFloat(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

// stepRampsLocked advances every ramped value's prev→cur→next exactly
// once per submitted device buffer, so parameter writes become audible
// on the next tick after the write.
func (s *SoundSystem) stepRampsLocked() {
	for _, hash := range s.groupOrder {
		s.groups[hash].gain.step()
	}
	s.voices.Each(func(_ Handle, v *Voice) {
		v.gain.step()
		v.pan.step()
		for c := range v.scaleL {
			v.scaleL[c].step()
			v.scaleR[c].step()
		}
	})
}

// mixInstance pulls decoded frames for one voice, resamples and
// gain/pan-ramps them into its group bus, and updates its position and
// history ring.
func (s *SoundSystem) mixInstance(v *Voice, g *Group, frameCount int) {
	info := v.info
	if info.Channels < 1 || info.Channels > maxSourceChannels ||
		(info.BitsPerSample != 8 && info.BitsPerSample != 16 && info.BitsPerSample != 32) {
		if !v.invalidShape {
			s.logWarn("voice disabled: unsupported stream shape", "channels", info.Channels, "bits", info.BitsPerSample)
			v.invalidShape = true
		}
		v.playing = false
		return
	}

	deltaF := float64(info.Rate) / float64(s.mixRate) * float64(v.speed)
	delta := uint64(deltaF * float64(dsp.IdentityDelta))
	if delta == 0 {
		return
	}

	masterGain := s.groups[MasterGroup].gain.cur
	muted := v.gain.cur == 0 && v.gain.next == 0 || g.gain.cur == 0 || masterGain == 0 || v.speed == 0

	// Frames required at and after the resume position: the ceiling of
	// the span frameCount output samples sweep, plus FUTURE lookahead for
	// the filter's forward taps.
	span := uint64(v.frameFraction) + uint64(frameCount)*delta
	ahead := int(span >> 31)
	if span&((1<<31)-1) != 0 {
		ahead++
	}
	ahead += Future

	// The working buffer is laid out as HISTORY frames of context
	// (silence-padded on first use), then the pending frames decoded last
	// tick but not yet consumed, then this tick's fresh decode. The
	// resume position is always workBuf[History].
	ctx := v.historyFilled - v.pending
	pad := History - ctx
	start := History + v.pending
	needDecode := ahead - v.pending
	if needDecode < 0 {
		needDecode = 0
	}

	channels := info.Channels
	bufLen := start + needDecode + Future
	for c := 0; c < channels; c++ {
		if cap(v.workBuf[c]) < bufLen {
			v.workBuf[c] = make([]float32, bufLen)
		} else {
			v.workBuf[c] = v.workBuf[c][:bufLen]
		}
		clearFloat(v.workBuf[c][:pad])
		copy(v.workBuf[c][pad:start], v.history[c][ringLength-ctx-v.pending:])
	}

	produced, eos := s.decodeInto(v, start, needDecode, muted)
	for c := 0; c < channels; c++ {
		// Pad with the last valid sample when the decoder underfetched at
		// stream end, so the resampler always has lookahead.
		last := v.workBuf[c][start+produced-1]
		for i := start + produced; i < bufLen; i++ {
			v.workBuf[c][i] = last
		}
	}
	if eos {
		v.endOfStream = true
	}

	if v.scaleDirty || v.scaleInit {
		s.recomputeScalesLocked(v)
	}

	avail := v.pending + produced
	pos := dsp.Pos(uint64(v.frameFraction))
	identity := delta == dsp.IdentityDelta && v.frameFraction == 0

	out := frameCount
	maxOut := int((int64(avail)<<31 - int64(v.frameFraction)) / int64(delta))
	if maxOut < 0 {
		maxOut = 0
	}
	if maxOut < out {
		out = maxOut
	}

	if out > 0 {
		if channels == 1 {
			gL0, gR0 := v.scaleL[0].cur, v.scaleR[0].cur
			gL1, gR1 := v.scaleL[0].next, v.scaleR[0].next
			dL := (gL1 - gL0) / float32(out)
			dR := (gR1 - gR0) / float32(out)
			if identity {
				dsp.MixMonoToStereo(g.mixL, g.mixR, v.workBuf[0][History:], out, gL0, gR0, dL, dR)
			} else {
				dsp.ResampleAndMixMonoToStereo(g.mixL, g.mixR, v.workBuf[0], History, pos, delta, out, gL0, gR0, dL, dR)
			}
		} else {
			gL0, gR0 := v.scaleL[0].cur, v.scaleR[1].cur
			gL1, gR1 := v.scaleL[0].next, v.scaleR[1].next
			dL := (gL1 - gL0) / float32(out)
			dR := (gR1 - gR0) / float32(out)
			if identity {
				dsp.MixStereoToStereo(g.mixL, g.mixR, v.workBuf[0][History:], v.workBuf[1][History:], out, gL0, gR0, dL, dR)
			} else {
				dsp.ResampleAndMixStereoToStereo(g.mixL, g.mixR, v.workBuf[0], v.workBuf[1], History, pos, delta, out, gL0, gR0, dL, dR)
			}
		}
	}

	final := uint64(v.frameFraction) + uint64(out)*delta
	consumed := int(final >> 31)
	v.frameFraction = uint32(final & ((1 << 31) - 1))

	// Save HISTORY frames of context behind the new resume point plus
	// every decoded-but-unconsumed frame (the FUTURE lookahead included)
	// back into the ring.
	newPending := avail - consumed
	if newPending < 0 {
		newPending = 0
	}
	if newPending > ringLength-History {
		newPending = ringLength - History
	}
	resume := History + consumed
	save := History + newPending
	for c := 0; c < channels; c++ {
		copy(v.history[c][ringLength-save:], v.workBuf[c][resume-History:resume+newPending])
	}
	v.historyFilled = save
	v.pending = newPending

	if v.endOfStream && out == 0 {
		v.playing = false
		v.historyFilled = 0
		v.pending = 0
	}
}

// decodeInto pulls up to needed frames into v.workBuf starting at frame
// offset start, converting non-float/interleaved output via the DSP
// kernels. Loop resets happen inside the fill loop so a looping voice's
// buffers stitch seamlessly across the boundary. eos is reported only
// when the stream ends with no loops remaining.
func (s *SoundSystem) decodeInto(v *Voice, start, needed int, muted bool) (produced int, eos bool) {
	for produced < needed {
		n, status, err := s.decodeChunk(v, start+produced, needed-produced, muted)
		if err != nil {
			s.logWarn("decode error", "err", err)
			v.playing = false
			return produced, false
		}
		produced += n
		if status == decoder.StatusEndOfStream {
			if v.looping && v.loopCounter != 0 {
				if v.loopCounter > 0 {
					v.loopCounter--
				}
				if err := v.stream.Reset(); err != nil {
					s.logWarn("loop reset failed", "err", err)
					return produced, true
				}
				continue
			}
			return produced, true
		}
		if n == 0 {
			break
		}
	}
	return produced, false
}

// decodeChunk issues one Decode call for up to frames frames, writing the
// converted result at workBuf frame offset start.
func (s *SoundSystem) decodeChunk(v *Voice, start, frames int, muted bool) (int, decoder.Status, error) {
	info := v.info
	channels := info.Channels
	bytesPerSample := info.BitsPerSample / 8
	if info.Interleaved {
		frameBytes := bytesPerSample * channels
		need := frames * frameBytes
		if need > len(s.scratch) {
			s.scratch = make([]byte, need)
		}
		buf := s.scratch[:need]

		dst := [][]byte{buf}
		if muted {
			dst = [][]byte{nil}
		}
		n, status, err := v.stream.Decode(dst, need)
		if err != nil {
			return 0, status, err
		}
		got := n / frameBytes
		if !muted {
			s.deinterleaveInto(v, buf[:got*frameBytes], start, info)
		} else {
			s.zeroWorkBufRegion(v, start, got)
		}
		return got, status, nil
	}

	outs := make([][]byte, channels)
	byteLen := frames * bytesPerSample
	planarScratch := make([][]byte, channels)
	if !muted {
		for c := 0; c < channels; c++ {
			planarScratch[c] = make([]byte, byteLen)
			outs[c] = planarScratch[c]
		}
	}
	n, status, err := v.stream.Decode(outs, byteLen)
	if err != nil {
		return 0, status, err
	}
	got := n / bytesPerSample
	if !muted {
		for c := 0; c < channels; c++ {
			switch info.BitsPerSample {
			case 32:
				copyFloatBytes(v.workBuf[c][start:start+got], planarScratch[c][:got*4])
			case 16:
				dsp.ConvertS16ToF32(v.workBuf[c][start:start+got], bytesToS16(planarScratch[c][:got*2]))
			case 8:
				dsp.ConvertS8ToF32(v.workBuf[c][start:start+got], bytesToS8(planarScratch[c][:got]))
			}
		}
	} else {
		s.zeroWorkBufRegion(v, start, got)
	}
	return got, status, nil
}

// zeroWorkBufRegion clears the freshly-decoded region of a muted voice's
// working buffer instead of leaving whatever the previous tick's
// unmuted decode left there, so a mute transition can never replay
// stale audio. The decoder still advances its stream position normally;
// only the sample conversion is skipped for a muted voice.
func (s *SoundSystem) zeroWorkBufRegion(v *Voice, start, frames int) {
	for c := 0; c < v.info.Channels; c++ {
		clearFloat(v.workBuf[c][start : start+frames])
	}
}

func (s *SoundSystem) deinterleaveInto(v *Voice, buf []byte, start int, info decoder.Info) {
	channels := info.Channels
	frames := len(buf) / (channels * info.BitsPerSample / 8)
	dst := make([][]float32, channels)
	for c := range dst {
		dst[c] = v.workBuf[c][start : start+frames]
	}
	switch info.BitsPerSample {
	case 32:
		dsp.DeinterleaveF32(dst, bytesToF32(buf), channels)
	case 16:
		dsp.DeinterleaveS16(dst, bytesToS16(buf), channels)
	case 8:
		dsp.DeinterleaveS8(dst, bytesToS8(buf), channels)
	}
}

func bytesToS16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}

func bytesToS8(b []byte) []int8 {
	out := make([]int8, len(b))
	for i := range out {
		out[i] = int8(b[i])
	}
	return out
}

func bytesToF32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func copyFloatBytes(dst []float32, src []byte) {
	f := bytesToF32(src)
	copy(dst, f)
}

// recomputeScalesLocked derives per-channel stereo scales from gain and
// pan: mono sources get constant-power pan scales applied identically
// to both output channels; stereo sources are diagonal (left input to
// left output, right to right) with no cross-term.
func (s *SoundSystem) recomputeScalesLocked(v *Voice) {
	gain := v.gain.next
	if v.gain.cur == 0 && v.gain.next == 0 {
		gain = 0
	}
	gain = dsp.ApplyGainModel(s.gainModel, gain)
	panL, panR := dsp.PanScales(v.pan.next)

	if v.info.Channels == 1 {
		scaleL, scaleR := gain*panL, gain*panR
		if v.scaleInit {
			v.scaleL[0].reset(scaleL)
			v.scaleR[0].reset(scaleR)
		} else {
			v.scaleL[0].setNext(scaleL)
			v.scaleR[0].setNext(scaleR)
		}
	} else {
		scaleL, scaleR := gain*panL, gain*panR
		if v.scaleInit {
			v.scaleL[0].reset(scaleL)
			v.scaleR[1].reset(scaleR)
			v.scaleL[1].reset(0)
			v.scaleR[0].reset(0)
		} else {
			v.scaleL[0].setNext(scaleL)
			v.scaleR[1].setNext(scaleR)
		}
	}
	v.scaleDirty = false
	v.scaleInit = false
}

// masterTick sums non-master groups into the master buffer, applies the
// master's ramped gain, and converts to the device's negotiated output
// format.
func (s *SoundSystem) masterTick(buf []byte, frames int) {
	clearFloat(s.masterBufL[:frames])
	clearFloat(s.masterBufR[:frames])

	master := s.groups[MasterGroup]
	for _, hash := range s.groupOrder {
		if hash == MasterGroup {
			continue
		}
		g := s.groups[hash]

		// Measure this bus's own incoming mix (pre its output gain,
		// mirroring how the master's window below measures pre-master-gain
		// samples) so GetGroupRMS/GetGroupPeak reflect every group, not
		// only the master bus.
		sumSqL, sumSqR, peakSqL, peakSqR := dsp.GatherPower(g.mixL, g.mixR, frames, 1)
		g.pushWindow(sumSqL, sumSqR, peakSqL, peakSqR, frames)

		if g.gain.cur == 0 && g.gain.next == 0 {
			continue
		}
		dGain := (g.gain.next - g.gain.cur) / float32(frames)
		dsp.ApplyClampedGain(s.masterBufL, g.mixL, frames, g.gain.cur, dGain)
		dsp.ApplyClampedGain(s.masterBufR, g.mixR, frames, g.gain.cur, dGain)
	}
	for i := 0; i < frames; i++ {
		s.masterBufL[i] += master.mixL[i]
		s.masterBufR[i] += master.mixR[i]
	}

	sumSqL, sumSqR, peakSqL, peakSqR := dsp.GatherPower(s.masterBufL, s.masterBufR, frames, 1)
	master.pushWindow(sumSqL, sumSqR, peakSqL, peakSqR, frames)

	dGain := (master.gain.next - master.gain.cur) / float32(frames)
	info := s.deviceInfo
	switch {
	case !info.UseFloats:
		if cap(s.s16Scratch) < frames*2 {
			s.s16Scratch = make([]int16, frames*2)
		}
		tmp := s.s16Scratch[:frames*2]
		dsp.ApplyGainAndInterleaveToS16(tmp, s.masterBufL, s.masterBufR, frames, master.gain.cur, dGain)
		for i, v := range tmp {
			buf[2*i] = byte(uint16(v))
			buf[2*i+1] = byte(uint16(v) >> 8)
		}
	case info.UseNormalized:
		writeF32Planar(buf, s.masterBufL, s.masterBufR, frames, master.gain.cur, dGain, 1.0)
	default:
		writeF32Planar(buf, s.masterBufL, s.masterBufR, frames, master.gain.cur, dGain, 32768.0)
	}
}

func writeF32Planar(buf []byte, inL, inR []float32, n int, gain, dGain, scale float32) {
	g := gain
	for i := 0; i < n; i++ {
		l := inL[i] * g * scale
		r := inR[i] * g * scale
		putF32(buf[4*i:], l)
		putF32(buf[4*(n+i):], r)
		g += dGain
	}
}

func putF32(b []byte, v float32) {
	bits := math.Float32bits(v)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}
