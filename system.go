package sndmix

import (
	"sync"
	"sync/atomic"
	"time"

	"sndmix/internal/dsp"

	"github.com/charmbracelet/log"
)

// SoundSystem is the engine's single context object, threaded through
// the public API; there are no mutable package globals beyond the
// decoder registry.
type SoundSystem struct {
	mu sync.Mutex

	device     Device
	deviceInfo DeviceInfo

	data   *slab[SoundData]
	voices *slab[Voice]

	groups     map[GroupHash]*Group
	groupOrder []GroupHash

	mixRate    int
	frameCount int
	gainModel  dsp.GainModel
	logger     *log.Logger

	// scratch holds interleaved/non-float decoder output before
	// deinterleaving/conversion to the per-voice float working buffers.
	scratch []byte
	// masterBufL/masterBufR are the final stereo mix before format
	// conversion.
	masterBufL []float32
	masterBufR []float32
	s16Scratch []int16
	// outBuf is the ring-buffered output staging area queued to the
	// device.
	outBuf [][]byte
	outPos int

	playCounter uint32

	running    atomic.Bool
	paused     atomic.Bool
	lastStatus atomic.Value // stores tickStatus

	deviceStarted    bool
	audioInterrupted atomic.Bool
	windowFocused    atomic.Bool

	tickInterval time.Duration
	workerDone   chan struct{}
}

// Initialize opens the device, allocates pools and scratch buffers,
// creates the master group, and (if Config.Threaded) starts the worker.
func Initialize(cfg Config) (*SoundSystem, error) {
	if cfg.Device == nil {
		return nil, ErrDeviceNotFound
	}

	dataCap := cfg.DataCapacity
	if dataCap <= 0 {
		dataCap = defaultDataCapacity
	}
	voiceCap := cfg.VoiceCapacity
	if voiceCap <= 0 {
		voiceCap = defaultVoiceCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	tick := time.Duration(cfg.TickInterval) * time.Millisecond
	if tick <= 0 {
		tick = defaultTickMillis * time.Millisecond
	}

	params := DeviceParams{BufferCount: cfg.BufferCount, FrameCount: cfg.FrameCount}
	if err := cfg.Device.Open(params); err != nil {
		return nil, ErrInitError
	}
	info := cfg.Device.Info()

	s := &SoundSystem{
		device:       cfg.Device,
		deviceInfo:   info,
		data:         newSlab[SoundData](dataCap),
		voices:       newSlab[Voice](voiceCap),
		groups:       make(map[GroupHash]*Group, MaxGroups),
		mixRate:      info.MixRate,
		frameCount:   info.FrameCount,
		gainModel:    cfg.GainModel,
		logger:       logger,
		tickInterval: tick,
	}
	s.lastStatus.Store(tickStatus{})

	if s.frameCount <= 0 {
		s.frameCount = cfg.FrameCount
	}
	s.scratch = make([]byte, s.frameCount*4*maxSourceChannels)
	s.masterBufL = make([]float32, s.frameCount)
	s.masterBufR = make([]float32, s.frameCount)

	bufCount := cfg.BufferCount
	if bufCount <= 0 {
		bufCount = 2
	}
	bytesPerFrame := 4
	if !info.UseFloats {
		bytesPerFrame = 2
	}
	channels := 2
	s.outBuf = make([][]byte, bufCount)
	for i := range s.outBuf {
		s.outBuf[i] = make([]byte, s.frameCount*bytesPerFrame*channels)
	}

	if _, err := s.AddGroup("master"); err != nil {
		return nil, err
	}

	s.windowFocused.Store(true)
	s.running.Store(true)

	if cfg.Threaded {
		s.workerDone = make(chan struct{})
		go s.workerLoop()
	}

	return s, nil
}

func (s *SoundSystem) workerLoop() {
	defer close(s.workerDone)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for range ticker.C {
		if !s.running.Load() {
			return
		}
		if s.paused.Load() {
			continue
		}
		s.lastStatus.Store(tickStatus{err: s.tick()})
	}
}

// tickStatus wraps the worker's last tick result; atomic.Value needs a
// consistently-typed, non-nil value to store.
type tickStatus struct {
	err error
}

// Update runs one mixer pass inline when the system is not threaded, or
// returns the worker's latest recorded status.
func (s *SoundSystem) Update() error {
	if s.workerDone != nil {
		st, _ := s.lastStatus.Load().(tickStatus)
		return st.err
	}
	if s.paused.Load() {
		return nil
	}
	return s.tick()
}

// SetPaused toggles an atomic flag the worker checks before each pass;
// when set, inline callers simply skip Update's mixer pass. Distinct
// from the per-voice Pause in instance.go.
func (s *SoundSystem) SetPaused(paused bool) {
	s.paused.Store(paused)
}

// OnWindowFocus updates the platform focus hint used by "is music
// playing" style queries.
func (s *SoundSystem) OnWindowFocus(focused bool) {
	s.windowFocused.Store(focused)
}

// OnAudioInterrupted updates the platform interruption hint; while set
// the mixer stops the device and no-ops.
func (s *SoundSystem) OnAudioInterrupted(interrupted bool) {
	s.audioInterrupted.Store(interrupted)
}

// NextPlayID returns a monotonic play-correlation id, wrapping at
// InvalidPlayID back to 0 rather than ever returning the sentinel.
func (s *SoundSystem) NextPlayID() uint32 {
	for {
		old := atomic.LoadUint32(&s.playCounter)
		next := old + 1
		if next == InvalidPlayID {
			next = 0
		}
		if atomic.CompareAndSwapUint32(&s.playCounter, old, next) {
			return next
		}
	}
}

// Finalize flips running false, joins the worker if one was started,
// stops and closes the device, and frees all pools.
func (s *SoundSystem) Finalize() error {
	s.running.Store(false)
	if s.workerDone != nil {
		<-s.workerDone
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.voices.Each(func(h Handle, v *Voice) {
		v.stream.Close()
	})

	var err error
	if s.deviceStarted {
		if stopErr := s.device.Stop(); stopErr != nil {
			err = ErrFiniError
		}
		s.deviceStarted = false
	}
	if closeErr := s.device.Close(); closeErr != nil {
		err = ErrFiniError
	}
	return err
}

func (s *SoundSystem) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
