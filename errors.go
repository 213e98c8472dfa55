package sndmix

import "errors"

// Error kinds returned by the core. OK and partial-read conditions are
// not modeled as errors since callers already get that information from
// a count plus a nil error.
var (
	// ErrOutOfSources is returned when the data pool has no free slots.
	ErrOutOfSources = errors.New("sndmix: out of sound data slots")

	// ErrOutOfInstances is returned when the voice pool has no free slots.
	ErrOutOfInstances = errors.New("sndmix: out of voice instances")

	// ErrOutOfBuffers is returned when the device has no free output buffers.
	ErrOutOfBuffers = errors.New("sndmix: out of output buffers")

	// ErrOutOfGroups is returned when adding a group would exceed MaxGroups.
	ErrOutOfGroups = errors.New("sndmix: out of groups")

	// ErrNoSuchGroup is returned when a group hash has no matching group.
	ErrNoSuchGroup = errors.New("sndmix: no such group")

	// ErrInvalidProperty is returned for out-of-range parameter writes or
	// operations not valid for a handle's current configuration (e.g.
	// SetSoundDataCallback on a handle created from an owned buffer).
	ErrInvalidProperty = errors.New("sndmix: invalid property")

	// ErrUnknownSoundType is returned for a SoundDataType the decoder
	// registry has no backend for.
	ErrUnknownSoundType = errors.New("sndmix: unknown sound type")

	// ErrInvalidStreamData is returned when a backend fails to parse a
	// stream's header on open.
	ErrInvalidStreamData = errors.New("sndmix: invalid stream data")

	// ErrUnsupported is returned for an unsupported channel count, bit
	// depth, or other stream shape the mixer cannot consume.
	ErrUnsupported = errors.New("sndmix: unsupported stream format")

	// ErrDeviceNotFound is returned when no Device implementation is
	// configured at Initialize.
	ErrDeviceNotFound = errors.New("sndmix: device not found")

	// ErrInitError is returned when the device fails to open.
	ErrInitError = errors.New("sndmix: device init error")

	// ErrFiniError is returned when the device fails to close cleanly.
	ErrFiniError = errors.New("sndmix: device fini error")

	// ErrNoData is returned by a pull callback when no bytes are
	// available yet (distinct from END_OF_STREAM).
	ErrNoData = errors.New("sndmix: no data available")

	// ErrNothingToPlay is returned by a mixer tick when there are no
	// active voices and the device is already stopped.
	ErrNothingToPlay = errors.New("sndmix: nothing to play")
)
