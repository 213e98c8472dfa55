// Package sndmix implements a fixed-pool, polyphonic real-time sound mixing
// and decoding engine.
//
// A SoundSystem owns a pool of SoundData assets and a pool of playing
// voices (SoundInstance); each tick it pulls decoded frames from every
// active voice, resamples and ramps gain/pan into per-group mix buses, and
// masters the result to an output Device. Supported source formats are WAV
// (PCM and IMA-ADPCM), Ogg/Vorbis, and Opus-in-Ogg.
//
// The engine never touches the network or the filesystem directly: sound
// bytes are supplied either as an in-memory buffer or a pull callback, and
// audio output is delegated to a Device implementation the caller provides.
package sndmix
