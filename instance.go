package sndmix

import (
	"sndmix/internal/decoder"
	"sndmix/internal/dsp"
)

// ramp is a three-point value stepped once per submitted device buffer:
// step moves cur into prev and next into cur. The mixer interpolates
// linearly from cur to next across one buffer, so a value only ramps
// within a buffer when next is written after that buffer's step (as
// recomputeScalesLocked does for voice scales); a value set with setNext
// before the step, such as a group gain, takes effect at the buffer's
// first sample without an intra-buffer ramp.
type ramp struct {
	prev, cur, next float32
}

func (r *ramp) step() {
	r.prev = r.cur
	r.cur = r.next
}

func (r *ramp) reset(v float32) {
	r.prev, r.cur, r.next = v, v, v
}

func (r *ramp) setNext(v float32) {
	r.next = v
}

// maxSourceChannels bounds the per-channel scale arrays; the mixer only
// accepts mono or stereo sources.
const maxSourceChannels = 2

// Voice is a ramped playback slot: one decoder stream plus the mixing
// state that carries its output across ticks.
type Voice struct {
	data   DataHandle
	stream decoder.Stream
	info   decoder.Info

	gain ramp
	pan  ramp
	// scaleL/scaleR are indexed by source channel: for mono both are
	// derived from pan; for stereo scaleL applies to channel 0 only and
	// scaleR to channel 1 only (diagonal panning).
	scaleL [maxSourceChannels]ramp
	scaleR [maxSourceChannels]ramp

	speed float32

	// frameFraction is the resampler's Q1.31 phase, carried across mix
	// ticks.
	frameFraction uint32

	// history holds History+SpeedMax+Future valid frames per source
	// channel so the 8-tap filter always has valid neighbors.
	history [maxSourceChannels][ringLength]float32
	// historyFilled counts the valid frames in history: HISTORY of filter
	// context behind the resume point plus pending frames at/after it.
	historyFilled int
	// pending counts the decoded-but-unconsumed frames (the FUTURE
	// lookahead and any ceiling slack) carried in history from the last
	// tick, so they are mixed before anything newly decoded.
	pending int

	// workBuf is the per-tick scratch used to stage history context plus
	// newly decoded frames before resampling; the resampler reads it via
	// explicit indexed views, never pointer offsets into shared scratch.
	workBuf [maxSourceChannels][]float32

	playing      bool
	looping      bool
	endOfStream  bool
	scaleDirty   bool
	scaleInit    bool
	loopCounter  int32 // -1 = infinite
	group        GroupHash
	mutedLogged  bool
	invalidShape bool // set once an unsupported stream shape disables the voice

	// UserData is a passive integration point: the
	// core never reads it. No exported method returns a *Voice, so the
	// field is reachable only from inside package sndmix.
	UserData any
}

// NewInstance pops a voice slot, opens a decoder stream over data, and
// initializes ramped values (gain=1, pan=0, constant-power scales ≈
// 0.7071) with a silenced history ring.
func (s *SoundSystem) NewInstance(data DataHandle) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.data.Get(data)
	if !ok {
		return Handle{}, ErrInvalidProperty
	}

	backend, err := s.backendFor(d.kind)
	if err != nil {
		return Handle{}, err
	}

	src := soundDataSource{sys: s, handle: data}
	stream, err := backend.Open(src)
	if err != nil {
		return Handle{}, ErrInvalidStreamData
	}

	h, v, ok := s.voices.Alloc()
	if !ok {
		stream.Close()
		return Handle{}, ErrOutOfInstances
	}

	if !s.acquireData(data) {
		s.voices.Free(h)
		stream.Close()
		return Handle{}, ErrInvalidProperty
	}

	v.data = data
	v.stream = stream
	v.info = stream.Info()
	v.gain.reset(1)
	v.pan.reset(0)
	scaleL, scaleR := dsp.PanScales(0)
	for c := 0; c < maxSourceChannels; c++ {
		v.scaleL[c].reset(scaleL)
		v.scaleR[c].reset(scaleR)
	}
	v.speed = 1
	v.loopCounter = -1
	v.group = MasterGroup
	v.scaleInit = true
	v.historyFilled = 0

	return h, nil
}

// soundDataSource adapts a SoundData handle to decoder.Source.
type soundDataSource struct {
	sys    *SoundSystem
	handle DataHandle
}

func (src soundDataSource) Read(offset int64, out []byte) int {
	d, ok := src.sys.data.Get(src.handle)
	if !ok {
		return 0
	}
	n, _ := d.Read(offset, out)
	return n
}

func (s *SoundSystem) backendFor(kind SoundDataType) (decoder.Backend, error) {
	b, ok := decoder.FindBest(kind.String())
	if !ok {
		return nil, ErrUnknownSoundType
	}
	return b, nil
}

func (s *SoundSystem) getVoice(h Handle) (*Voice, error) {
	v, ok := s.voices.Get(h)
	if !ok {
		return nil, ErrInvalidProperty
	}
	return v, nil
}

// SetParameter writes a voice's Gain, Pan, or Speed.
// Gain/Pan update the ramp's next point, or hard-reset
// all three points while the voice isn't playing yet; Speed is stored
// directly with no ramp and is clamped to [0, SpeedMax].
func (s *SoundSystem) SetParameter(h Handle, p Parameter, value float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.getVoice(h)
	if err != nil {
		return err
	}
	switch p {
	case Gain:
		if !v.playing {
			v.gain.reset(value)
		} else {
			v.gain.setNext(value)
		}
		v.scaleDirty = true
	case Pan:
		if !v.playing {
			v.pan.reset(value)
		} else {
			v.pan.setNext(value)
		}
		v.scaleDirty = true
	case Speed:
		if value < 0 {
			value = 0
		} else if value > SpeedMax {
			value = SpeedMax
		}
		v.speed = value
	default:
		return ErrInvalidProperty
	}
	return nil
}

func stride(info decoder.Info) int64 {
	channels := int64(info.Channels)
	if info.Interleaved {
		return channels * int64(info.BitsPerSample/8)
	}
	return int64(info.BitsPerSample / 8)
}

// SetStartFrame positions the decoder at frameIndex, independent of
// speed. An end-of-stream result here is not
// an error: the voice simply reports done on its first play tick.
func (s *SoundSystem) SetStartFrame(h Handle, frameIndex int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.getVoice(h)
	if err != nil {
		return err
	}
	byteCount := int(frameIndex * stride(v.info))
	_, status, err := v.stream.Skip(byteCount)
	if err != nil {
		return err
	}
	if status == decoder.StatusEndOfStream {
		v.endOfStream = true
	}
	return nil
}

// SetStartTime is SetStartFrame scaled by the stream's sample rate.
func (s *SoundSystem) SetStartTime(h Handle, seconds float64) error {
	s.mu.Lock()
	v, err := s.getVoice(h)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	frameIndex := int64(seconds * float64(v.info.Rate))
	s.mu.Unlock()
	return s.SetStartFrame(h, frameIndex)
}

// SetLooping stores looping and loopCounter (-1 = infinite).
func (s *SoundSystem) SetLooping(h Handle, looping bool, loopCounter int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.getVoice(h)
	if err != nil {
		return err
	}
	v.looping = looping
	v.loopCounter = loopCounter
	return nil
}

// Play marks the voice playing.
func (s *SoundSystem) Play(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.getVoice(h)
	if err != nil {
		return err
	}
	v.playing = true
	return nil
}

// Stop immediately halts the voice, drops its residual frames, and
// resets its decoder to the logical beginning.
func (s *SoundSystem) Stop(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.getVoice(h)
	if err != nil {
		return err
	}
	v.playing = false
	v.endOfStream = false
	v.historyFilled = 0
	v.pending = 0
	v.frameFraction = 0
	return v.stream.Reset()
}

// Pause toggles playback without resetting decoder state.
func (s *SoundSystem) Pause(h Handle, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.getVoice(h)
	if err != nil {
		return err
	}
	v.playing = !paused
	return nil
}

// GetInternalPos returns the voice's decoder-reported frame position,
// queried straight off the underlying Stream regardless of whether the
// voice is currently muted: a muted voice's position tracks an audible
// one on the same clip identically, since mute only skips sample
// conversion, never the decode/skip that advances position.
func (s *SoundSystem) GetInternalPos(h Handle) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.getVoice(h)
	if err != nil {
		return 0, err
	}
	return v.stream.Position(), nil
}

// SetInstanceGroup rebinds a voice to a different Group, failing with
// ErrNoSuchGroup if the hash is unknown.
func (s *SoundSystem) SetInstanceGroup(h Handle, group GroupHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.getVoice(h)
	if err != nil {
		return err
	}
	if _, ok := s.groups[group]; !ok {
		return ErrNoSuchGroup
	}
	v.group = group
	return nil
}

// DeleteInstance forces stop, releases the decoder and the SoundData
// refcount, and returns the slot to the pool.
func (s *SoundSystem) DeleteInstance(h Handle) error {
	s.mu.Lock()
	v, ok := s.voices.Get(h)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidProperty
	}
	v.playing = false
	v.stream.Close()
	data := v.data
	s.voices.Free(h)
	s.mu.Unlock()
	return s.ReleaseSoundData(data)
}
