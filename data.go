package sndmix

import "sync/atomic"

// ReadStatus is the result of a SoundData read: either the full byte count
// was satisfied, or one of three short-read reasons.
type ReadStatus int

const (
	// StatusOK means size bytes were written.
	StatusOK ReadStatus = iota
	// StatusPartial means fewer than size bytes were written because
	// offset+size ran past the known extent.
	StatusPartial
	// StatusEndOfStream means offset was at or past the known extent;
	// zero bytes were written.
	StatusEndOfStream
	// StatusNoData means a pull callback has nothing ready yet; zero
	// bytes were written and the caller should retry later.
	StatusNoData
)

// PullCallback supplies bytes for a callback-backed SoundData. It must
// write up to len(out) bytes starting at offset into out and return how
// many bytes it wrote plus a status.
type PullCallback func(ctx any, offset int64, out []byte) (int, ReadStatus)

// DataHandle addresses a SoundData asset in a SoundSystem's data pool.
type DataHandle = Handle

// SoundData is an immutable asset handle: a name, a format tag, and either
// an owned byte buffer or a pull callback. Contents are never mutated from
// outside the core once created (SetSoundData/SetSoundDataCallback are the
// sole exceptions, and both require the core mutex).
type SoundData struct {
	name string
	kind SoundDataType

	bytes []byte
	cb    PullCallback
	cbCtx any

	refcount int32
}

// Name returns the asset's name fingerprint, as given to NewSoundData.
func (d *SoundData) Name() string { return d.name }

// Type returns the asset's codec tag.
func (d *SoundData) Type() SoundDataType { return d.kind }

// Size returns the known size in bytes, or -1 if the asset is
// callback-backed and its extent is unknown.
func (d *SoundData) Size() int64 {
	if d.bytes != nil {
		return int64(len(d.bytes))
	}
	return -1
}

// Read serves a byte-ranged read against the asset, delegating to the
// pull callback for callback-backed data or slicing the owned buffer
// directly. It never returns more than len(out) bytes.
func (d *SoundData) Read(offset int64, out []byte) (int, ReadStatus) {
	if d.cb != nil {
		return d.cb(d.cbCtx, offset, out)
	}
	total := int64(len(d.bytes))
	if offset >= total {
		return 0, StatusEndOfStream
	}
	remaining := total - offset
	n := int64(len(out))
	partial := n > remaining
	if partial {
		n = remaining
	}
	copy(out[:n], d.bytes[offset:offset+n])
	if partial {
		return int(n), StatusPartial
	}
	return int(n), StatusOK
}

// NewSoundData allocates a slot from the data pool for an owned byte
// buffer. Initial refcount is 1; release it with ReleaseSoundData once no voice
// references it.
func (s *SoundSystem) NewSoundData(bytes []byte, kind SoundDataType, name string) (DataHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newSoundDataLocked(bytes, nil, nil, kind, name)
}

// NewSoundDataCallback allocates a slot for a pull-callback-backed asset.
func (s *SoundSystem) NewSoundDataCallback(cb PullCallback, ctx any, kind SoundDataType, name string) (DataHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newSoundDataLocked(nil, cb, ctx, kind, name)
}

func (s *SoundSystem) newSoundDataLocked(bytes []byte, cb PullCallback, ctx any, kind SoundDataType, name string) (DataHandle, error) {
	h, d, ok := s.data.Alloc()
	if !ok {
		return Handle{}, ErrOutOfSources
	}
	d.name = name
	d.kind = kind
	d.bytes = bytes
	d.cb = cb
	d.cbCtx = ctx
	d.refcount = 1
	return h, nil
}

// SetSoundData replaces an owned buffer's bytes. It is invalid on a
// callback-backed handle.
func (s *SoundSystem) SetSoundData(h DataHandle, bytes []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.Get(h)
	if !ok {
		return ErrInvalidProperty
	}
	if d.cb != nil {
		return ErrInvalidProperty
	}
	d.bytes = bytes
	return nil
}

// SetSoundDataCallback rebinds a callback-backed handle's pull callback at
// runtime (source: sound.cpp SetSoundDataCallback). It is invalid on a
// handle created from an owned in-memory buffer.
func (s *SoundSystem) SetSoundDataCallback(h DataHandle, cb PullCallback, ctx any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.Get(h)
	if !ok {
		return ErrInvalidProperty
	}
	if d.bytes != nil {
		return ErrInvalidProperty
	}
	d.cb = cb
	d.cbCtx = ctx
	return nil
}

// acquireData increments a SoundData's refcount; called when a voice binds
// to it.
func (s *SoundSystem) acquireData(h DataHandle) bool {
	d, ok := s.data.Get(h)
	if !ok {
		return false
	}
	atomic.AddInt32(&d.refcount, 1)
	return true
}

// ReleaseSoundData decrements a SoundData's refcount; at zero the slot is
// freed and the handle becomes invalid.
func (s *SoundSystem) ReleaseSoundData(h DataHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.Get(h)
	if !ok {
		return ErrInvalidProperty
	}
	if atomic.AddInt32(&d.refcount, -1) <= 0 {
		s.data.Free(h)
	}
	return nil
}
