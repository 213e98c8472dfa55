package sndmix

import (
	"sndmix/internal/dsp"

	"github.com/charmbracelet/log"
)

// Config configures a SoundSystem at Initialize. The engine does no
// config-file or flag parsing of its own; values reach it through this
// struct.
type Config struct {
	// Device is the output collaborator; Initialize fails with
	// ErrDeviceNotFound if nil.
	Device Device

	// DataCapacity bounds the SoundData pool, which never grows past
	// it. Zero selects a modest default.
	DataCapacity int
	// VoiceCapacity bounds the voice pool. Zero selects a modest default.
	VoiceCapacity int

	// BufferCount and FrameCount are passed through to Device.Open as
	// DeviceParams.
	BufferCount int
	FrameCount  int

	// GainModel selects linear or perceptual gain curves.
	GainModel dsp.GainModel

	// Logger receives the mixer's logged-once warnings. A nil Logger
	// gets log.Default().
	Logger *log.Logger

	// Threaded starts a worker goroutine running the mixer loop on a
	// sleep cadence; false means the caller must call Update
	// cooperatively.
	Threaded bool

	// TickInterval overrides the worker's sleep cadence in
	// milliseconds. Zero selects the default (8ms).
	TickInterval int // milliseconds
}

const (
	defaultDataCapacity  = 256
	defaultVoiceCapacity = 64
	defaultTickMillis    = 8
)
