package sndmix

// Parameter selects which ramped value SetParameter writes to.
type Parameter int

const (
	// Gain is the voice's linear output gain, ramped.
	Gain Parameter = iota
	// Pan is the voice's stereo pan in [-1, 1], ramped.
	Pan
	// Speed is the voice's playback speed multiplier, not ramped.
	Speed
)

func (p Parameter) String() string {
	switch p {
	case Gain:
		return "gain"
	case Pan:
		return "pan"
	case Speed:
		return "speed"
	default:
		return "unknown"
	}
}

// SoundDataType identifies the codec a SoundData asset's bytes are encoded
// with.
type SoundDataType int

const (
	// TypeWAV is RIFF/WAVE PCM or IMA-ADPCM.
	TypeWAV SoundDataType = iota
	// TypeOggVorbis is Vorbis audio in Ogg framing.
	TypeOggVorbis
	// TypeOpus is Opus audio in Ogg framing.
	TypeOpus
)

func (t SoundDataType) String() string {
	switch t {
	case TypeWAV:
		return "wav"
	case TypeOggVorbis:
		return "ogg_vorbis"
	case TypeOpus:
		return "opus"
	default:
		return "unknown"
	}
}

// GroupHash identifies a Group bus. It is a fingerprint of the group's
// name, stable across runs so that content (e.g. a sound bank) can
// reference groups by a precomputed constant.
type GroupHash uint32

// MasterGroup is the reserved bus every other group's output is eventually
// summed into. It always exists after Initialize.
var MasterGroup = HashGroupName("master")

const (
	// InvalidPlayID is the sentinel at which NextPlayID wraps back to 0;
	// NextPlayID skips over it rather than ever returning it.
	InvalidPlayID uint32 = 0xFFFFFFFF

	// MaxGroups bounds the number of simultaneously live Group buses.
	MaxGroups = 32
)

// SpeedMax bounds Voice.speed; the history ring is sized so the resampler
// always has valid neighbors up to this playback rate multiplier.
const SpeedMax = 5

// History, Future and the ring's total size (History + SpeedMax + Future)
// come directly from the 8-tap polyphase filter's neighbor requirements:
// 3 taps behind the current sample, 4 ahead, plus SpeedMax extra frames
// of slack so a fast voice never runs the ring dry between ticks.
const (
	History    = 4
	Future     = 4
	ringLength = History + SpeedMax + Future
)

// HashGroupName computes the fingerprint used to address a Group bus. It
// is FNV-1a over the name bytes — small, dependency-free, and stable
// across processes and platforms, so content (e.g. a sound bank) can
// address groups by a precomputed constant.
func HashGroupName(name string) GroupHash {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= prime32
	}
	return GroupHash(h)
}
