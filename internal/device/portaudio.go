// Package device provides concrete sndmix.Device implementations. The
// PortAudio device wraps github.com/gordonklaus/portaudio's blocking
// stream API the same way rustyguts-bken/client/audio.go drives its
// playback stream: open with explicit StreamParameters, Start, then
// Write a fixed-size buffer per callback.
package device

import (
	"math"

	"sndmix"

	"github.com/gordonklaus/portaudio"
)

const (
	defaultMixRate    = 48000
	defaultFrameCount = 960 // 20ms @ 48kHz, matching the Opus frame size
	outputChannels    = 2
)

// PortAudio is a blocking-write stereo float32 output device.
type PortAudio struct {
	OutputDeviceIndex int // -1 selects the system default

	stream     *portaudio.Stream
	buf        []float32
	frameCount int
	mixRate    int
	started    bool
}

func (d *PortAudio) Open(params sndmix.DeviceParams) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}

	frameCount := params.FrameCount
	if frameCount <= 0 {
		frameCount = defaultFrameCount
	}
	d.frameCount = frameCount
	d.mixRate = defaultMixRate
	d.buf = make([]float32, frameCount*outputChannels)

	outDev, err := d.resolveOutputDevice()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	streamParams := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outDev,
			Channels: outputChannels,
			Latency:  outDev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(d.mixRate),
		FramesPerBuffer: frameCount,
	}
	stream, err := portaudio.OpenStream(streamParams, d.buf)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	d.stream = stream
	return nil
}

func (d *PortAudio) resolveOutputDevice() (*portaudio.DeviceInfo, error) {
	if d.OutputDeviceIndex < 0 {
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if d.OutputDeviceIndex >= len(devices) {
		return portaudio.DefaultOutputDevice()
	}
	return devices[d.OutputDeviceIndex], nil
}

func (d *PortAudio) Start() error { d.started = true; return d.stream.Start() }
func (d *PortAudio) Stop() error  { d.started = false; return d.stream.Stop() }

func (d *PortAudio) Close() error {
	err := d.stream.Close()
	portaudio.Terminate()
	return err
}

// Queue reads a planar (all-L then all-R) stereo float32 buffer from
// data, per Info's UseNonInterleaved, interleaves it into the stream's
// native LRLR buffer, and blocks until PortAudio accepts it.
func (d *PortAudio) Queue(data []byte, frameCount int) error {
	n := frameCount
	if n > d.frameCount {
		n = d.frameCount
	}
	readF32 := func(i int) float32 {
		bits := uint32(data[4*i]) | uint32(data[4*i+1])<<8 | uint32(data[4*i+2])<<16 | uint32(data[4*i+3])<<24
		return math.Float32frombits(bits)
	}
	for i := 0; i < n; i++ {
		d.buf[2*i] = readF32(i)
		d.buf[2*i+1] = readF32(n + i)
	}
	for i := n; i < d.frameCount; i++ {
		d.buf[2*i] = 0
		d.buf[2*i+1] = 0
	}
	return d.stream.Write()
}

// FreeBufferSlots and AvailableFrames are approximations: the blocking
// Write API has no queue depth to inspect, so the mixer always sees one
// buffer's worth of room.
func (d *PortAudio) FreeBufferSlots() uint32 { return 1 }
func (d *PortAudio) AvailableFrames() uint32 { return uint32(d.frameCount) }

var _ sndmix.Device = (*PortAudio)(nil)

func (d *PortAudio) Info() sndmix.DeviceInfo {
	return sndmix.DeviceInfo{
		MixRate:           d.mixRate,
		FrameCount:        d.frameCount,
		UseFloats:         true,
		UseNormalized:     true,
		UseNonInterleaved: true,
		DSPImplHint:       "portaudio",
	}
}
