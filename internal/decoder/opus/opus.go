// Package opus implements the decoder.Backend contract for Opus-in-Ogg
// assets: Ogg page/lacing parsing via internal/oggopus feeding complete
// packets to github.com/thesyncim/gopus's pure-Go Opus decoder.
package opus

import (
	"io"
	"math"

	"sndmix/internal/decoder"
	"sndmix/internal/oggopus"

	gopus "github.com/thesyncim/gopus"
)

// standardRates are the rates the Opus decoder may run at.
var standardRates = [...]int{8000, 12000, 16000, 24000, 48000}

// chooseDecodeRate picks the smallest standard rate >= min(original, 48000),
// or 48000 when original is unspecified (0). Files tagged above 48kHz
// always decode at 48kHz rather than being upsampled externally.
func chooseDecodeRate(original uint32) int {
	target := int(original)
	if target == 0 || target > 48000 {
		target = 48000
	}
	for _, r := range standardRates {
		if r >= target {
			return r
		}
	}
	return 48000
}

// maxFrameSamples bounds one Opus frame at 48kHz/stereo/60ms, the
// largest shape gopus.Decoder.Decode can return (2880 * 2 = 5760).
const maxFrameSamples = 2880 * 2

// Backend is the Opus decoder.Backend.
type Backend struct{}

func (Backend) Name() string { return "opus" }
func (Backend) Score() int   { return 0 }

func init() {
	decoder.Register("opus", Backend{})
}

func (Backend) Open(src decoder.Source) (decoder.Stream, error) {
	s := &stream{src: src}
	if err := s.openAt(0); err != nil {
		return nil, decoder.ErrInvalidStreamData
	}
	return s, nil
}

// sourceReader adapts a byte-ranged decoder.Source into a sequential
// io.Reader for oggopus.NewReader, which only ever reads forward.
type sourceReader struct {
	src    decoder.Source
	offset int64
}

func (r *sourceReader) Read(p []byte) (int, error) {
	n := r.src.Read(r.offset, p)
	r.offset += int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

type stream struct {
	src decoder.Source

	reader  *oggopus.Reader
	decoder *gopus.Decoder
	info    decoder.Info

	outputScale float32
	preSkip     int // samples still to discard at the logical stream start

	leftover   []float32 // undelivered interleaved samples from the last packet
	pos        int64     // frames delivered so far
	pcmScratch []float32
}

func (s *stream) openAt(byteOffset int64) error {
	r, err := oggopus.NewReader(&sourceReader{src: s.src, offset: byteOffset})
	if err != nil {
		return err
	}
	if r.Header.MappingFamily != 0 || (r.Header.Channels != 1 && r.Header.Channels != 2) {
		return decoder.ErrInvalidStreamData
	}

	rate := chooseDecodeRate(r.Header.SampleRate)
	dec, err := gopus.NewDecoder(rate, int(r.Header.Channels))
	if err != nil {
		return err
	}

	scale := float32(1)
	if r.Header.OutputGain != 0 {
		scale = float32(math.Pow(10, float64(r.Header.OutputGain)/(20*256)))
	}

	s.reader = r
	s.decoder = dec
	s.outputScale = scale
	s.preSkip = int(r.Header.PreSkip)
	s.leftover = nil
	s.pos = 0
	s.pcmScratch = make([]float32, maxFrameSamples)
	s.info = decoder.Info{
		Rate:          rate,
		Channels:      int(r.Header.Channels),
		BitsPerSample: 32,
		Interleaved:   true,
	}
	return nil
}

func (s *stream) Info() decoder.Info { return s.info }
func (s *stream) Position() int64    { return s.pos }

// decodeNextPacket pulls the next complete Opus packet and decodes it,
// applying pre-skip and output gain. Returns the decoded interleaved
// samples (possibly empty after pre-skip consumed the whole frame) or
// io.EOF.
func (s *stream) decodeNextPacket() ([]float32, error) {
	packet, _, err := s.reader.ReadPacket()
	if err != nil {
		return nil, err
	}
	n, err := s.decoder.Decode(packet, s.pcmScratch)
	if err != nil {
		return nil, decoder.ErrInvalidStreamData
	}
	channels := s.info.Channels
	out := s.pcmScratch[:n*channels]

	if s.preSkip > 0 {
		skipFrames := s.preSkip
		if skipFrames > n {
			skipFrames = n
		}
		out = out[skipFrames*channels:]
		s.preSkip -= skipFrames
	}
	if s.outputScale != 1 {
		for i := range out {
			out[i] *= s.outputScale
		}
	}
	return out, nil
}

// Decode fills out[0] with up to capacity bytes of interleaved float32
// samples.
func (s *stream) Decode(out [][]byte, capacity int) (int, decoder.Status, error) {
	channels := s.info.Channels
	frameBytes := 4 * channels
	framesWanted := capacity / frameBytes
	sink := len(out) == 0 || out[0] == nil

	var produced []float32
	if len(s.leftover) > 0 {
		produced = s.leftover
		s.leftover = nil
	}

	for len(produced) < framesWanted*channels {
		chunk, err := s.decodeNextPacket()
		if err == io.EOF {
			if len(produced) == 0 {
				return 0, decoder.StatusEndOfStream, nil
			}
			break
		}
		if err != nil {
			return 0, decoder.StatusOK, err
		}
		if len(chunk) == 0 {
			continue
		}
		produced = append(produced, chunk...)
	}

	frames := len(produced) / channels
	if frames > framesWanted {
		frames = framesWanted
	}
	used := frames * channels
	if used < len(produced) {
		s.leftover = append([]float32(nil), produced[used:]...)
	}

	if !sink {
		writeF32LEInterleaved(out[0], produced[:used])
	}
	s.pos += int64(frames)
	return used * 4, decoder.StatusOK, nil
}

func writeF32LEInterleaved(dst []byte, src []float32) {
	for i, v := range src {
		bits := math.Float32bits(v)
		dst[4*i] = byte(bits)
		dst[4*i+1] = byte(bits >> 8)
		dst[4*i+2] = byte(bits >> 16)
		dst[4*i+3] = byte(bits >> 24)
	}
}

// Skip is equivalent to Decode with a null sink: Ogg has no container
// seek table, so forward skipping still costs a full decode.
func (s *stream) Skip(byteCount int) (int, decoder.Status, error) {
	var nilOut [][]byte
	return s.Decode(nilOut, byteCount)
}

// Reset reopens the stream at byte 0: it builds a new packet reader and
// Opus decoder, so the OpusHead and OpusTags header pages are parsed
// again on every reset. sndmix's Source is always a fully
// buffered/random-access SoundData, so the reread needs no network.
func (s *stream) Reset() error {
	return s.openAt(0)
}

func (s *stream) Close() error {
	return nil
}

var _ decoder.Stream = (*stream)(nil)
