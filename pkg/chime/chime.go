// Package chime plays short audio cues when a recording starts or stops.
package chime

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
	"github.com/youpy/go-wav"
)

const (
	sampleRate   = 44100
	channelCount = 2
)

// Player holds the decoded cues and the audio context. Cues never overlap;
// a cue requested while another plays waits for it.
type Player struct {
	mu     sync.Mutex
	otoCtx *oto.Context
	start  []byte
	stop   []byte
}

// New decodes the cue files (WAV or MP3; an empty path skips that cue) and
// opens the audio device.
func New(startPath, stopPath string) (*Player, error) {
	start, err := loadOptional(startPath)
	if err != nil {
		return nil, err
	}
	stop, err := loadOptional(stopPath)
	if err != nil {
		return nil, err
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
	}
	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	return &Player{otoCtx: otoCtx, start: start, stop: stop}, nil
}

func loadOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return LoadPCM(path)
}

// RecordingStarted plays the start cue in the background.
func (p *Player) RecordingStarted() {
	go p.play(p.start)
}

// RecordingStopped plays the stop cue in the background.
func (p *Player) RecordingStopped(error) {
	go p.play(p.stop)
}

func (p *Player) play(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	player := p.otoCtx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()
	player.Play()
	for player.IsPlaying() {
		time.Sleep(20 * time.Millisecond)
	}
}

// LoadPCM decodes a WAV or MP3 file into signed 16-bit little endian PCM at
// 44.1kHz stereo.
func LoadPCM(path string) ([]byte, error) {
	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sound file: %w", err)
	}

	var pcmData []byte
	var rate, channels int

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		format, err := wav.NewReader(bytes.NewReader(fileData)).Format()
		if err != nil {
			return nil, fmt.Errorf("failed to get wav format: %w", err)
		}
		if format.BitsPerSample != 16 {
			return nil, fmt.Errorf("unsupported wav sample size %d bits", format.BitsPerSample)
		}
		pcmData, err = io.ReadAll(wav.NewReader(bytes.NewReader(fileData)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode wav data: %w", err)
		}
		rate = int(format.SampleRate)
		channels = int(format.NumChannels)

	case ".mp3":
		decoder, err := mp3.NewDecoder(bytes.NewReader(fileData))
		if err != nil {
			return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
		}
		pcmData, err = io.ReadAll(decoder)
		if err != nil {
			return nil, fmt.Errorf("failed to decode mp3 data: %w", err)
		}
		rate = decoder.SampleRate()
		channels = 2

	default:
		return nil, fmt.Errorf("unsupported sound format %q", filepath.Ext(path))
	}

	if rate != sampleRate || channels != channelCount {
		pcmData = convertAudio(pcmData, rate, channels, sampleRate, channelCount)
	}
	slog.Debug("Loaded chime", "path", path, "bytes", len(pcmData))
	return pcmData, nil
}

// convertAudio converts 16-bit PCM between sample rates and from mono to
// stereo using linear interpolation.
func convertAudio(pcmData []byte, fromRate, fromChannels, toRate, toChannels int) []byte {
	sampleCount := len(pcmData) / 2
	samples := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcmData[i*2 : i*2+2]))
	}

	stereo := samples
	if fromChannels == 1 && toChannels == 2 {
		stereo = make([]int16, sampleCount*2)
		for i, s := range samples {
			stereo[i*2] = s
			stereo[i*2+1] = s
		}
	}

	resampled := stereo
	if fromRate != toRate && len(stereo) > 0 {
		// Interpolate per frame so channels stay interleaved.
		frames := len(stereo) / toChannels
		ratio := float64(toRate) / float64(fromRate)
		outFrames := int(float64(frames) * ratio)
		resampled = make([]int16, outFrames*toChannels)

		for i := 0; i < outFrames; i++ {
			srcPos := float64(i) / ratio
			srcIdx := int(srcPos)
			frac := srcPos - float64(srcIdx)
			for ch := 0; ch < toChannels; ch++ {
				if srcIdx >= frames-1 {
					resampled[i*toChannels+ch] = stereo[(frames-1)*toChannels+ch]
					continue
				}
				s1 := float64(stereo[srcIdx*toChannels+ch])
				s2 := float64(stereo[(srcIdx+1)*toChannels+ch])
				resampled[i*toChannels+ch] = int16(s1 + (s2-s1)*frac)
			}
		}
	}

	result := make([]byte, len(resampled)*2)
	for i, sample := range resampled {
		binary.LittleEndian.PutUint16(result[i*2:i*2+2], uint16(sample))
	}
	return result
}
