// Package vorbis implements the decoder.Backend contract for Ogg/Vorbis
// assets via libvorbis, using github.com/xlab/vorbis-go's cgo bindings.
// The push-mode usage of OggSyncState/OggStreamState/DspState/Block is
// adapted from xlab-vorbis-go/decoder.Decoder, restructured from that
// package's io.Reader-driven goroutine-and-channel decoder into a
// synchronous pull Stream fed from a bounded input buffer.
package vorbis

import (
	"math"

	"sndmix/internal/decoder"

	"github.com/xlab/vorbis-go/vorbis"
)

// inputBufferSize bounds the Vorbis backend's read-ahead buffer.
const inputBufferSize = 16 * 1024

// Backend is the Vorbis decoder.Backend.
type Backend struct{}

func (Backend) Name() string { return "vorbis" }
func (Backend) Score() int   { return 0 }

func init() {
	decoder.Register("ogg_vorbis", Backend{})
}

func (Backend) Open(src decoder.Source) (decoder.Stream, error) {
	s := &stream{src: src}
	vorbis.OggSyncInit(&s.sync)
	vorbis.InfoInit(&s.info)
	vorbis.CommentInit(&s.comment)

	if err := s.readHeaders(); err != nil {
		s.Close()
		return nil, decoder.ErrInvalidStreamData
	}

	if ret := vorbis.SynthesisInit(&s.dsp, &s.info); ret < 0 {
		s.Close()
		return nil, decoder.ErrInvalidStreamData
	}
	vorbis.BlockInit(&s.dsp, &s.block)
	s.dspReady = true

	s.infoOut = decoder.Info{
		Rate:          int(s.info.Rate),
		Channels:      int(s.info.Channels),
		BitsPerSample: 32,
		Interleaved:   false,
	}
	return s, nil
}

type stream struct {
	src decoder.Source

	sync    vorbis.OggSyncState
	page    vorbis.OggPage
	packet  vorbis.OggPacket
	stream_ vorbis.OggStreamState
	info    vorbis.Info
	comment vorbis.Comment
	dsp     vorbis.DspState
	block   vorbis.Block

	dspReady    bool
	streamReady bool
	eos         bool

	readOffset int64 // how far into src we've pulled bytes from
	infoOut    decoder.Info
	pos        int64 // frames decoded so far, for Position()
}

func (s *stream) Info() decoder.Info { return s.infoOut }
func (s *stream) Position() int64    { return s.pos }

// fill tops up libvorbis's sync buffer from src and reports how many
// bytes were appended.
func (s *stream) fill(n int) int {
	buf := vorbis.OggSyncBuffer(&s.sync, n)
	got := s.src.Read(s.readOffset, buf[:n])
	vorbis.OggSyncWrote(&s.sync, got)
	s.readOffset += int64(got)
	return got
}

func (s *stream) readHeaders() error {
	if s.fill(inputBufferSize) == 0 {
		return decoder.ErrInvalidStreamData
	}
	if ret := vorbis.OggSyncPageout(&s.sync, &s.page); ret != 1 {
		return decoder.ErrInvalidStreamData
	}
	vorbis.OggStreamInit(&s.stream_, vorbis.OggPageSerialno(&s.page))
	s.streamReady = true

	if ret := vorbis.OggStreamPagein(&s.stream_, &s.page); ret < 0 {
		return decoder.ErrInvalidStreamData
	}
	if ret := vorbis.OggStreamPacketout(&s.stream_, &s.packet); ret != 1 {
		return decoder.ErrInvalidStreamData
	}
	if ret := vorbis.SynthesisHeaderin(&s.info, &s.comment, &s.packet); ret < 0 {
		return decoder.ErrInvalidStreamData
	}

	headersRead := 1
	for headersRead < 3 {
		ret := vorbis.OggSyncPageout(&s.sync, &s.page)
		if ret == 0 {
			if s.fill(inputBufferSize) == 0 {
				return decoder.ErrInvalidStreamData
			}
			continue
		}
		if ret < 0 {
			continue
		}
		vorbis.OggStreamPagein(&s.stream_, &s.page)
		for headersRead < 3 {
			pret := vorbis.OggStreamPacketout(&s.stream_, &s.packet)
			if pret == 0 {
				break
			}
			if pret < 0 {
				return decoder.ErrInvalidStreamData
			}
			if ret := vorbis.SynthesisHeaderin(&s.info, &s.comment, &s.packet); ret < 0 {
				return decoder.ErrInvalidStreamData
			}
			headersRead++
		}
	}
	s.info.Deref()
	return nil
}

// Decode fills out[c] (one slice per channel, planar, un-interleaved)
// with up to capacity/4 float32 samples per channel, topping up the
// input buffer and pulling Ogg pages/packets as needed.
func (s *stream) Decode(out [][]byte, capacity int) (int, decoder.Status, error) {
	channels := int(s.info.Channels)
	framesWanted := capacity / 4
	dst := make([][]float32, channels)
	sink := len(out) == 0 || out[0] == nil
	if !sink {
		for c := 0; c < channels; c++ {
			if c < len(out) && out[c] != nil {
				dst[c] = make([]float32, 0, framesWanted)
			}
		}
	}

	produced := 0
	pcmBuf := [][][]float32{make([][]float32, channels)}

	for produced < framesWanted && !s.eos {
		ret := vorbis.OggSyncPageout(&s.sync, &s.page)
		if ret == 0 {
			if s.fill(4096) == 0 {
				s.eos = true
				break
			}
			continue
		}
		if ret < 0 {
			continue
		}
		vorbis.OggStreamPagein(&s.stream_, &s.page)
		if vorbis.OggPageEos(&s.page) == 1 {
			s.eos = true
		}

		for produced < framesWanted {
			pret := vorbis.OggStreamPacketout(&s.stream_, &s.packet)
			if pret == 0 {
				break
			}
			if pret < 0 {
				continue
			}
			if vorbis.Synthesis(&s.block, &s.packet) == 0 {
				vorbis.SynthesisBlockin(&s.dsp, &s.block)
			}
			samples := vorbis.SynthesisPcmout(&s.dsp, pcmBuf)
			for samples > 0 && produced < framesWanted {
				n := int(samples)
				if n > framesWanted-produced {
					n = framesWanted - produced
				}
				if !sink {
					for c := 0; c < channels; c++ {
						if dst[c] != nil {
							dst[c] = append(dst[c], pcmBuf[0][c][:n]...)
						}
					}
				}
				vorbis.SynthesisRead(&s.dsp, int32(n))
				produced += n
				samples = vorbis.SynthesisPcmout(&s.dsp, pcmBuf)
			}
		}
	}

	s.pos += int64(produced)
	if !sink {
		for c := 0; c < channels && c < len(out); c++ {
			if out[c] != nil {
				writeF32LE(out[c], dst[c])
			}
		}
	}
	written := produced * 4

	if produced == 0 && s.eos {
		return 0, decoder.StatusEndOfStream, nil
	}
	return written, decoder.StatusOK, nil
}

func writeF32LE(dst []byte, src []float32) {
	for i, v := range src {
		bits := math.Float32bits(v)
		dst[4*i] = byte(bits)
		dst[4*i+1] = byte(bits >> 8)
		dst[4*i+2] = byte(bits >> 16)
		dst[4*i+3] = byte(bits >> 24)
	}
}

func (s *stream) Skip(byteCount int) (int, decoder.Status, error) {
	var nilOut [][]byte
	return s.Decode(nilOut, byteCount)
}

func (s *stream) Reset() error {
	s.eos = false
	s.readOffset = 0
	s.pos = 0
	if s.dspReady {
		vorbis.BlockClear(&s.block)
		vorbis.DspClear(&s.dsp)
		s.dspReady = false
	}
	if s.streamReady {
		vorbis.OggStreamClear(&s.stream_)
		s.streamReady = false
	}
	vorbis.CommentClear(&s.comment)
	vorbis.InfoClear(&s.info)
	vorbis.OggSyncDestroy(&s.sync)
	vorbis.OggSyncInit(&s.sync)
	vorbis.InfoInit(&s.info)
	vorbis.CommentInit(&s.comment)
	if err := s.readHeaders(); err != nil {
		return err
	}
	if ret := vorbis.SynthesisInit(&s.dsp, &s.info); ret < 0 {
		return decoder.ErrInvalidStreamData
	}
	vorbis.BlockInit(&s.dsp, &s.block)
	s.dspReady = true
	return nil
}

func (s *stream) Close() error {
	if s.dspReady {
		vorbis.BlockClear(&s.block)
		vorbis.DspClear(&s.dsp)
	}
	if s.streamReady {
		vorbis.OggStreamClear(&s.stream_)
	}
	vorbis.CommentClear(&s.comment)
	vorbis.InfoClear(&s.info)
	vorbis.OggSyncDestroy(&s.sync)
	return nil
}

var _ decoder.Stream = (*stream)(nil)
