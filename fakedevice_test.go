package sndmix

import "sync"

// fakeDevice is an in-memory Device for exercising SoundSystem without a
// real audio backend: Queue just records the buffers it was given.
type fakeDevice struct {
	mu      sync.Mutex
	info    DeviceInfo
	started bool
	queued  [][]byte
}

func newFakeDevice(mixRate, frameCount int) *fakeDevice {
	return &fakeDevice{
		info: DeviceInfo{
			MixRate:       mixRate,
			FrameCount:    frameCount,
			UseFloats:     true,
			UseNormalized: true,
		},
	}
}

func (d *fakeDevice) Open(params DeviceParams) error { return nil }
func (d *fakeDevice) Close() error                   { return nil }

func (d *fakeDevice) Queue(data []byte, frameCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	d.queued = append(d.queued, cp)
	return nil
}

func (d *fakeDevice) FreeBufferSlots() uint32 { return 1 }
func (d *fakeDevice) AvailableFrames() uint32 { return 0 }
func (d *fakeDevice) Info() DeviceInfo        { return d.info }
func (d *fakeDevice) Start() error            { d.started = true; return nil }
func (d *fakeDevice) Stop() error             { d.started = false; return nil }

var _ Device = (*fakeDevice)(nil)
