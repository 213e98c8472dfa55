package sndmix

import "encoding/binary"

// buildPCM16WAV constructs a minimal mono or stereo PCM16 RIFF/WAVE asset
// in memory, for tests that need a real decodable SoundData without
// reading a fixture file from disk.
func buildPCM16WAV(rate, channels int, samples []int16) []byte {
	dataSize := len(samples) * 2
	blockAlign := channels * 2
	byteRate := rate * blockAlign

	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, 'R', 'I', 'F', 'F')
	buf = appendU32(buf, uint32(36+dataSize))
	buf = append(buf, 'W', 'A', 'V', 'E')

	buf = append(buf, 'f', 'm', 't', ' ')
	buf = appendU32(buf, 16)
	buf = appendU16(buf, 1) // PCM
	buf = appendU16(buf, uint16(channels))
	buf = appendU32(buf, uint32(rate))
	buf = appendU32(buf, uint32(byteRate))
	buf = appendU16(buf, uint16(blockAlign))
	buf = appendU16(buf, 16) // bits per sample

	buf = append(buf, 'd', 'a', 't', 'a')
	buf = appendU32(buf, uint32(dataSize))
	for _, s := range samples {
		buf = appendU16(buf, uint16(s))
	}
	return buf
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}
