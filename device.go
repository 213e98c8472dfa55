package sndmix

// DeviceParams is what Initialize passes to Device.Open.
type DeviceParams struct {
	// BufferCount is the requested number of in-flight output buffers.
	BufferCount int
	// FrameCount is the requested frames per buffer; the device may pick
	// its own internal frame count instead (DeviceInfo.FrameCount wins).
	FrameCount int
}

// DeviceInfo describes the format a Device expects Queue's bytes in.
type DeviceInfo struct {
	MixRate int
	// FrameCount is the device's actual frames-per-buffer, which may
	// differ from the requested DeviceParams.FrameCount.
	FrameCount int
	// UseFloats selects F32 planar output; false selects S16 interleaved.
	UseFloats bool
	// UseNormalized selects floats in [-1, 1] rather than S16-magnitude
	// floats; meaningless when UseFloats is false.
	UseNormalized bool
	// UseNonInterleaved reports whether the device takes planar channel
	// layout (all-L then all-R) rather than interleaved (L, R, L, R, ...).
	// The mixer does not read it: F32 output is always planar and S16
	// output always interleaved, as UseFloats describes.
	UseNonInterleaved bool
	// DSPImplHint names a preferred kernel variant; advisory only.
	DSPImplHint string
}

// Device is the host audio output collaborator. The core never
// touches a driver directly; it calls through this interface, which the
// caller implements over whatever platform audio API is available.
// Queue may block until the driver accepts data and is always called
// without the core mutex held.
type Device interface {
	// Open prepares the device for output and must return
	// DeviceInfo-compatible state before Info is called.
	Open(params DeviceParams) error
	// Close releases device resources. Idempotent.
	Close() error
	// Queue submits one buffer of data formatted per Info(). May block.
	Queue(data []byte, frameCount int) error
	// FreeBufferSlots reports how many buffers can be queued right now
	// without blocking. Non-blocking.
	FreeBufferSlots() uint32
	// AvailableFrames reports frames ready to be filled for the next
	// queue call, or 0 if the device has no preference.
	AvailableFrames() uint32
	// Info reports the negotiated output format.
	Info() DeviceInfo
	// Start begins playback. Idempotent.
	Start() error
	// Stop halts playback. Idempotent.
	Stop() error
}
