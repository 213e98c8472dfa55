package sndmix

import (
	"bytes"
	"math"
	"testing"

	ogg "github.com/thesyncim/gopus/container/ogg"
)

// TestIdentitySineAmplitude exercises the end-to-end sine-amplitude case:
// a 440Hz tone at the device's own rate, played at default gain/pan/speed,
// comes out of the master bus scaled by exactly the 0-pan constant-power
// factor (cos(pi/4) applied to both channels), sample for sample.
func TestIdentitySineAmplitude(t *testing.T) {
	const rate = 44100
	const frameCount = 512
	const totalFrames = 88200

	samples := make([]int16, totalFrames)
	input := make([]float32, totalFrames)
	for i := range samples {
		v := math.Sin(2 * math.Pi * 440 * float64(i) / rate)
		input[i] = float32(v)
		samples[i] = int16(math.Round(v * 32767))
	}
	wav := buildPCM16WAV(rate, 1, samples)

	dev := newFakeDevice(rate, frameCount)
	sys, err := Initialize(Config{Device: dev, FrameCount: frameCount})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer sys.Finalize()

	data, err := sys.NewSoundData(wav, TypeWAV, "sine.wav")
	if err != nil {
		t.Fatalf("NewSoundData: %v", err)
	}
	h, err := sys.NewInstance(data)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	if err := sys.Play(h); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := sys.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}

	const scale = 0.70710678 // cos(pi/4), the pan=0 constant-power factor
	const tolerance = 27.0 / 32768.0

	dev.mu.Lock()
	buf := dev.queued[0]
	dev.mu.Unlock()
	for i := 0; i < frameCount; i++ {
		l := math.Float32frombits(leU32(buf[4*i:]))
		want := input[i] * scale
		if math.Abs(float64(l-want)) > tolerance {
			t.Fatalf("frame %d: L = %v, want %v (input %v)", i, l, want, input[i])
		}
	}
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// TestGroupGainLinearDecay exercises the group-ramp case: stepping the
// master group's gain down by one tick's worth of decay before every
// one-frame Update() reproduces the exact linear amplitude envelope
// input[k]*cos(pi/4)*(1-k/total), since a one-frame device buffer makes
// each tick's ramp (which snaps to its new target when stepped)
// coincide with that single output frame.
func TestGroupGainLinearDecay(t *testing.T) {
	const rate = 44100
	const total = 200 // scaled down from a full clip for test speed

	samples := make([]int16, total)
	input := make([]float32, total)
	for i := range samples {
		v := math.Sin(2 * math.Pi * 440 * float64(i) / rate)
		input[i] = float32(v)
		samples[i] = int16(math.Round(v * 32767))
	}
	wav := buildPCM16WAV(rate, 1, samples)

	dev := newFakeDevice(rate, 1)
	sys, err := Initialize(Config{Device: dev, FrameCount: 1})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer sys.Finalize()

	data, err := sys.NewSoundData(wav, TypeWAV, "sine.wav")
	if err != nil {
		t.Fatalf("NewSoundData: %v", err)
	}
	h, err := sys.NewInstance(data)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	if err := sys.Play(h); err != nil {
		t.Fatalf("Play: %v", err)
	}

	const scale = 0.70710678
	const tolerance = 2.0 / 32768.0

	for k := 0; k < total; k++ {
		if k > 0 {
			frac := float32(1 - float64(k)/float64(total))
			if err := sys.SetGroupGain(MasterGroup, frac); err != nil {
				t.Fatalf("SetGroupGain: %v", err)
			}
		}
		if err := sys.Update(); err != nil {
			t.Fatalf("Update frame %d: %v", k, err)
		}

		dev.mu.Lock()
		buf := dev.queued[len(dev.queued)-1]
		dev.mu.Unlock()

		l := math.Float32frombits(leU32(buf))
		frac := float32(1 - float64(k)/float64(total))
		want := input[k] * scale * frac
		if math.Abs(float64(l-want)) > tolerance {
			t.Fatalf("frame %d: L = %v, want %v", k, l, want)
		}
	}
}

// buildOggOpusAsset writes n identical minimal Opus packets (SILK
// narrowband config 3, decoding to 2880 samples/channel at 48kHz) into a
// fresh Ogg Opus container.
func buildOggOpusAsset(t *testing.T, channels int, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := ogg.NewWriter(&buf, 48000, uint8(channels))
	if err != nil {
		t.Fatalf("ogg.NewWriter: %v", err)
	}
	packet := []byte{0x18, 0x00}
	for i := 0; i < n; i++ {
		if err := w.WritePacket(packet, 2880); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

// TestOpusSkipSyncPositionMatch exercises the skip-sync case: an audible
// voice and a fully muted voice (gain 0) decoding the same Opus clip stay
// position-identical tick for tick, since muting only skips sample
// conversion in decodeInto, never the underlying packet decode that
// advances Stream.Position.
func TestOpusSkipSyncPositionMatch(t *testing.T) {
	oggBytes := buildOggOpusAsset(t, 1, 6)

	dev := newFakeDevice(48000, 512)
	sys, err := Initialize(Config{Device: dev, FrameCount: 512})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer sys.Finalize()

	data, err := sys.NewSoundData(oggBytes, TypeOpus, "tone.opus")
	if err != nil {
		t.Fatalf("NewSoundData: %v", err)
	}

	audible, err := sys.NewInstance(data)
	if err != nil {
		t.Fatalf("NewInstance(audible): %v", err)
	}
	muted, err := sys.NewInstance(data)
	if err != nil {
		t.Fatalf("NewInstance(muted): %v", err)
	}
	if err := sys.SetParameter(muted, Gain, 0); err != nil {
		t.Fatalf("SetParameter(muted, Gain, 0): %v", err)
	}
	if err := sys.Play(audible); err != nil {
		t.Fatalf("Play(audible): %v", err)
	}
	if err := sys.Play(muted); err != nil {
		t.Fatalf("Play(muted): %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := sys.Update(); err != nil && err != ErrNothingToPlay {
			t.Fatalf("Update %d: %v", i, err)
		}
		posA, err := sys.GetInternalPos(audible)
		if err != nil {
			t.Fatalf("GetInternalPos(audible): %v", err)
		}
		posM, err := sys.GetInternalPos(muted)
		if err != nil {
			t.Fatalf("GetInternalPos(muted): %v", err)
		}
		if posA != posM {
			t.Fatalf("tick %d: audible pos = %d, muted pos = %d, want equal", i, posA, posM)
		}
	}
}
