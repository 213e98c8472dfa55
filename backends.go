package sndmix

// Importing these packages purely for their init() side effect
// registers every built-in format backend with the decoder registry
// before any SoundSystem is created.
import (
	_ "sndmix/internal/decoder/opus"
	_ "sndmix/internal/decoder/vorbis"
	_ "sndmix/internal/decoder/wav"
)
