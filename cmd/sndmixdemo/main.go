// sndmixdemo loads one or more sound files, plays them through a
// PortAudio device, and prints the master group's RMS/peak meters while
// they play.
package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"sndmix"
	"sndmix/internal/device"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"
)

func main() {
	var (
		gain     = flag.Float32P("gain", "g", 1.0, "linear output gain for every played file")
		pan      = flag.Float32P("pan", "p", 0.0, "stereo pan in [-1, 1]")
		loop     = flag.BoolP("loop", "l", false, "loop playback forever")
		outDevID = flag.IntP("device", "d", -1, "PortAudio output device index, -1 for default")
	)
	flag.Parse()

	logger := log.Default()
	paths := flag.Args()
	if len(paths) == 0 {
		logger.Fatal("usage: sndmixdemo [flags] file.wav [file.ogg ...]")
	}

	dev := &device.PortAudio{OutputDeviceIndex: *outDevID}
	sys, err := sndmix.Initialize(sndmix.Config{
		Device:   dev,
		Threaded: true,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("initialize failed", "err", err)
	}
	defer sys.Finalize()

	for _, path := range paths {
		kind, err := sniffType(path)
		if err != nil {
			logger.Warn("skipping file", "path", path, "err", err)
			continue
		}
		bytes, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("read failed", "path", path, "err", err)
			continue
		}
		data, err := sys.NewSoundData(bytes, kind, path)
		if err != nil {
			logger.Warn("register failed", "path", path, "err", err)
			continue
		}
		voice, err := sys.NewInstance(data)
		if err != nil {
			logger.Warn("instance failed", "path", path, "err", err)
			continue
		}
		sys.SetParameter(voice, sndmix.Gain, *gain)
		sys.SetParameter(voice, sndmix.Pan, *pan)
		sys.SetLooping(voice, *loop, -1)
		if err := sys.Play(voice); err != nil {
			logger.Warn("play failed", "path", path, "err", err)
			continue
		}
		logger.Info("playing", "path", path, "type", kind)
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		rmsL, rmsR, _ := sys.GetGroupRMS(sndmix.MasterGroup, 0.1)
		peakL, peakR, _ := sys.GetGroupPeak(sndmix.MasterGroup, 0.1)
		logger.Info("meter", "rmsL", rmsL, "rmsR", rmsR, "peakL", peakL, "peakR", peakR)
	}
}

func sniffType(path string) (sndmix.SoundDataType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return sndmix.TypeWAV, nil
	case ".ogg":
		return sndmix.TypeOggVorbis, nil
	case ".opus":
		return sndmix.TypeOpus, nil
	default:
		return 0, sndmix.ErrUnknownSoundType
	}
}
