// Package wav implements the decoder.Backend contract for RIFF/WAVE
// assets: linear PCM8/PCM16, and IMA-ADPCM with per-channel predictor
// state. Both variants stream directly off a byte-ranged reader rather
// than loading the whole file.
package wav

import (
	"encoding/binary"

	"sndmix/internal/decoder"
)

const (
	fmtPCM   = 0x0001
	fmtADPCM = 0x0011
)

// imaIndexTable and imaStepTable are the canonical IMA-ADPCM step tables
// defined by the 1992 Interactive Multimedia Association spec; every IMA
// decoder uses the same 89-entry step table and 16-entry index table.
var imaIndexTable = [16]int32{
	-1, -1, -1, -1, 2, 4, 6, 8,
	-1, -1, -1, -1, 2, 4, 6, 8,
}

var imaStepTable = [89]int32{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17,
	19, 21, 23, 25, 28, 31, 34, 37, 41, 45,
	50, 55, 60, 66, 73, 80, 88, 97, 107, 118,
	130, 143, 157, 173, 190, 209, 230, 253, 279, 307,
	337, 371, 408, 449, 494, 544, 598, 658, 724, 796,
	876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066,
	2272, 2499, 2749, 3024, 3327, 3660, 4026, 4428, 4871, 5358,
	5894, 6484, 7132, 7845, 8630, 9493, 10442, 11487, 12635, 13899,
	15289, 16818, 18500, 20350, 22385, 24623, 27086, 29794, 32767,
}

// decodeNibble applies one IMA-ADPCM nibble update to (pred, stepIndex,
// step).
func decodeNibble(n uint32, pred, stepIndex, step int32) (int32, int32, int32) {
	stepIndex += imaIndexTable[n&15]
	if stepIndex < 0 {
		stepIndex = 0
	} else if stepIndex > 88 {
		stepIndex = 88
	}
	diff := step >> 3
	if n&1 != 0 {
		diff += step >> 2
	}
	if n&2 != 0 {
		diff += step >> 1
	}
	if n&4 != 0 {
		diff += step
	}
	if n&8 != 0 {
		pred -= diff
		if pred < -32768 {
			pred = -32768
		}
	} else {
		pred += diff
		if pred > 32767 {
			pred = 32767
		}
	}
	step = imaStepTable[stepIndex]
	return pred, stepIndex, step
}

// Backend is the WAV decoder.Backend. It is stateless; all state lives in
// the Stream it opens.
type Backend struct{}

func (Backend) Name() string { return "wav" }
func (Backend) Score() int   { return 0 }

func init() {
	decoder.Register("wav", Backend{})
}

func (Backend) Open(src decoder.Source) (decoder.Stream, error) {
	var riff [12]byte
	n := src.Read(0, riff[:])
	if n < 12 || string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, decoder.ErrInvalidStreamData
	}

	var (
		haveFmt, haveData bool
		audioFormat       uint16
		channels          int
		rate              int
		blockAlign        uint16
		bitsPerSample     int
		dataOffset        int64
		dataSize          int64
	)

	offset := int64(12)
	for !(haveFmt && haveData) {
		var chunkHdr [8]byte
		n := src.Read(offset, chunkHdr[:])
		if n < 8 {
			break
		}
		chunkID := string(chunkHdr[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(chunkHdr[4:8]))

		switch chunkID {
		case "fmt ":
			var fmtBuf [16]byte
			fn := src.Read(offset+8, fmtBuf[:])
			if fn < 16 {
				return nil, decoder.ErrInvalidStreamData
			}
			audioFormat = binary.LittleEndian.Uint16(fmtBuf[0:2])
			channels = int(binary.LittleEndian.Uint16(fmtBuf[2:4]))
			rate = int(binary.LittleEndian.Uint32(fmtBuf[4:8]))
			blockAlign = binary.LittleEndian.Uint16(fmtBuf[12:14])
			bitsPerSample = int(binary.LittleEndian.Uint16(fmtBuf[14:16]))
			if (audioFormat != fmtPCM && audioFormat != fmtADPCM) ||
				(audioFormat == fmtADPCM && bitsPerSample != 4) {
				return nil, decoder.ErrInvalidStreamData
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				// data before fmt is not streamable without buffering
				// the whole chunk; reject it.
				return nil, decoder.ErrInvalidStreamData
			}
			dataOffset = offset + 8
			dataSize = chunkSize
			haveData = true
		}
		offset += 8 + chunkSize
	}

	if !haveFmt || !haveData {
		return nil, decoder.ErrInvalidStreamData
	}

	if audioFormat == fmtADPCM {
		blockFrames := int(blockAlign) - 4*channels
		if channels == 1 {
			blockFrames *= 2
		}
		return &adpcmStream{
			src:         src,
			info:        decoder.Info{Rate: rate, Channels: channels, BitsPerSample: 16, Interleaved: true, Size: dataSize},
			dataOffset:  dataOffset,
			dataSize:    dataSize,
			blockAlign:  int(blockAlign),
			blockFrames: blockFrames,
			outFrameOff: blockFrames,
		}, nil
	}

	return &pcmStream{
		src:        src,
		info:       decoder.Info{Rate: rate, Channels: channels, BitsPerSample: bitsPerSample, Interleaved: true, Size: dataSize},
		dataOffset: dataOffset,
		dataSize:   dataSize,
	}, nil
}

// pcmStream streams raw little-endian PCM8/PCM16 bytes directly.
type pcmStream struct {
	src        decoder.Source
	info       decoder.Info
	dataOffset int64
	dataSize   int64
	cursor     int64
}

func (s *pcmStream) Info() decoder.Info { return s.info }

func (s *pcmStream) Position() int64 {
	stride := int64(s.info.Channels * s.info.BitsPerSample / 8)
	if stride == 0 {
		return 0
	}
	return s.cursor / stride
}

func (s *pcmStream) Decode(out [][]byte, capacity int) (int, decoder.Status, error) {
	remaining := s.dataSize - s.cursor
	if remaining <= 0 {
		return 0, decoder.StatusEndOfStream, nil
	}
	n := int64(capacity)
	if n > remaining {
		n = remaining
	}
	var written int
	if len(out) > 0 && out[0] != nil {
		written = s.src.Read(s.dataOffset+s.cursor, out[0][:n])
	} else {
		written = int(n)
	}
	s.cursor += int64(written)
	return written, decoder.StatusOK, nil
}

func (s *pcmStream) Skip(byteCount int) (int, decoder.Status, error) {
	remaining := s.dataSize - s.cursor
	if remaining <= 0 {
		return 0, decoder.StatusEndOfStream, nil
	}
	n := int64(byteCount)
	if n > remaining {
		n = remaining
	}
	s.cursor += n
	return int(n), decoder.StatusOK, nil
}

func (s *pcmStream) Reset() error { s.cursor = 0; return nil }
func (s *pcmStream) Close() error { return nil }

// adpcmStream streams IMA-ADPCM, decoding one block of blockAlign bytes at
// a time into 16-bit interleaved PCM. It stages any decoded frames beyond
// what the caller asked for so a sub-block-granularity request sequence
// still produces bit-exact output.
type adpcmStream struct {
	src        decoder.Source
	info       decoder.Info
	dataOffset int64
	dataSize   int64
	cursor     int64

	blockAlign  int
	blockFrames int

	inBuf    []byte
	inOffset int
	pred     []adpcmChannelState

	outBuf      []int16
	outFrameOff int // index (in frames) of the first unread sample in outBuf
}

func (s *adpcmStream) Info() decoder.Info { return s.info }

func (s *adpcmStream) Position() int64 {
	channels := int64(s.info.Channels)
	headerSize := int64(4 * channels)
	pos := s.cursor - int64(len(s.inBuf)) + int64(s.inOffset)
	block := pos / int64(s.blockAlign)
	blockOff := pos - block*int64(s.blockAlign)
	blockOff -= headerSize
	if blockOff < 0 {
		blockOff = 0
	}
	if channels == 1 {
		blockOff *= 2
	}
	return block*int64(s.blockFrames) + blockOff
}

func (s *adpcmStream) minFrames() int {
	if s.info.Channels == 1 {
		return 2
	}
	return 8
}

func (s *adpcmStream) Decode(out [][]byte, capacity int) (int, decoder.Status, error) {
	channels := s.info.Channels
	stride := 2 * channels
	needed := capacity / stride

	var dst []int16
	var sink bool
	if len(out) > 0 && out[0] != nil {
		dst = make([]int16, needed*channels)
	} else {
		sink = true
	}
	produced := 0

	// Drain any staged frames from last call first.
	if len(s.outBuf) != 0 {
		framesAvail := len(s.outBuf) / channels
		take := framesAvail - s.outFrameOff
		if take > needed {
			take = needed
		}
		if take > 0 && !sink {
			copy(dst[produced*channels:], s.outBuf[s.outFrameOff*channels:(s.outFrameOff+take)*channels])
		}
		produced += take
		s.outFrameOff += take
		needed -= take
		if s.outFrameOff >= framesAvail {
			s.outBuf = nil
			s.outFrameOff = 0
		}
	}

	eos := false
	for needed > 0 {
		if len(s.inBuf) < s.blockAlign {
			if s.cursor >= s.dataSize {
				eos = true
				break
			}
			want := s.blockAlign - len(s.inBuf)
			remaining := s.dataSize - s.cursor
			if int64(want) > remaining {
				want = int(remaining)
			}
			buf := make([]byte, want)
			n := s.src.Read(s.dataOffset+s.cursor, buf)
			s.cursor += int64(n)
			s.inBuf = append(s.inBuf, buf[:n]...)
			if n == 0 {
				break
			}
		}

		if s.inOffset == 0 {
			if len(s.inBuf) < channels*4 {
				break
			}
			s.predBegin()
		}

		min := s.minFrames()
		var target int
		if needed < min {
			target = min
		} else {
			target = needed &^ (min - 1)
		}

		var available int
		if channels == 1 {
			available = (len(s.inBuf) - s.inOffset) * 2
		} else {
			available = (len(s.inBuf) &^ 7) - s.inOffset
		}
		if target > available {
			target = available
		}
		if target <= 0 {
			break
		}

		var decodeOut []int16
		staging := needed < target
		if staging {
			s.outBuf = make([]int16, target*channels)
			s.outFrameOff = 0
			decodeOut = s.outBuf
		} else if !sink {
			decodeOut = dst[produced*channels:]
		} else {
			decodeOut = make([]int16, target*channels)
		}

		s.decodeBlock(decodeOut, target)
		needed -= target
		if !staging {
			produced += target
		}

		if s.inOffset >= s.blockAlign {
			s.inOffset = 0
			s.inBuf = nil
		}
	}

	if needed < 0 {
		// Overshot into staged frames: copy the requested remainder.
		short := needed + s.minFrames()
		if !sink && short > 0 {
			copy(dst[produced*channels:], s.outBuf[:short*channels])
		}
		s.outFrameOff = short
		produced += short
	}

	if !sink && produced > 0 {
		writeLE16(out[0], dst[:produced*channels])
	}
	written := produced * stride

	if eos {
		if written == 0 {
			return 0, decoder.StatusEndOfStream, nil
		}
		return written, decoder.StatusOK, nil
	}
	return written, decoder.StatusOK, nil
}

func writeLE16(dst []byte, src []int16) {
	for i, v := range src {
		dst[2*i] = byte(uint16(v))
		dst[2*i+1] = byte(uint16(v) >> 8)
	}
}

type adpcmChannelState struct {
	pred, stepIndex, step int32
}

func (s *adpcmStream) predBegin() {
	channels := s.info.Channels
	s.pred = make([]adpcmChannelState, channels)
	for c := 0; c < channels; c++ {
		base := c * 4
		pred := int32(int16(uint16(s.inBuf[base]) | uint16(s.inBuf[base+1])<<8))
		stepIndex := int32(int8(s.inBuf[base+2]))
		s.pred[c] = adpcmChannelState{pred: pred, stepIndex: stepIndex, step: imaStepTable[stepIndex]}
	}
	s.inOffset = channels * 4
}

func (s *adpcmStream) decodeBlock(out []int16, frames int) {
	channels := s.info.Channels
	if channels == 1 {
		st := s.pred[0]
		bytes := frames >> 1
		oi := 0
		for i := 0; i < bytes; i++ {
			b := uint32(s.inBuf[s.inOffset+i])
			st.pred, st.stepIndex, st.step = decodeNibble(b, st.pred, st.stepIndex, st.step)
			out[oi] = int16(st.pred)
			oi++
			st.pred, st.stepIndex, st.step = decodeNibble(b>>4, st.pred, st.stepIndex, st.step)
			out[oi] = int16(st.pred)
			oi++
		}
		s.inOffset += bytes
		s.pred[0] = st
		return
	}

	st0, st1 := s.pred[0], s.pred[1]
	oi := 0
	in := s.inOffset
	for remaining := frames; remaining > 0; remaining -= 8 {
		blk0 := uint32(s.inBuf[in]) | uint32(s.inBuf[in+1])<<8 | uint32(s.inBuf[in+2])<<16 | uint32(s.inBuf[in+3])<<24
		blk1 := uint32(s.inBuf[in+4]) | uint32(s.inBuf[in+5])<<8 | uint32(s.inBuf[in+6])<<16 | uint32(s.inBuf[in+7])<<24
		in += 8
		for b := 0; b < 8; b++ {
			st0.pred, st0.stepIndex, st0.step = decodeNibble(blk0&0xF, st0.pred, st0.stepIndex, st0.step)
			out[oi] = int16(st0.pred)
			oi++
			st1.pred, st1.stepIndex, st1.step = decodeNibble(blk1&0xF, st1.pred, st1.stepIndex, st1.step)
			out[oi] = int16(st1.pred)
			oi++
			blk0 >>= 4
			blk1 >>= 4
		}
	}
	s.inOffset = in
	s.pred[0], s.pred[1] = st0, st1
}

func (s *adpcmStream) Skip(byteCount int) (int, decoder.Status, error) {
	skipped := 0
	var nilOut [][]byte
	for byteCount > 0 {
		n := byteCount
		if n > 4096 {
			n = 4096
		}
		written, status, err := s.Decode(nilOut, n)
		if err != nil {
			return skipped, status, err
		}
		if written == 0 {
			return skipped, status, nil
		}
		skipped += written
		byteCount -= written
		if status == decoder.StatusEndOfStream {
			return skipped, status, nil
		}
	}
	return skipped, decoder.StatusOK, nil
}

func (s *adpcmStream) Reset() error {
	s.cursor = 0
	s.inBuf = nil
	s.inOffset = 0
	s.outBuf = nil
	s.outFrameOff = s.blockFrames
	return nil
}

func (s *adpcmStream) Close() error { return nil }

var _ decoder.Stream = (*pcmStream)(nil)
var _ decoder.Stream = (*adpcmStream)(nil)
