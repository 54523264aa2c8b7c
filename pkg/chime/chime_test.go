package chime

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// 16-bit mono 22.05kHz WAV with two samples (1000, -1000).
var monoWav = []byte{
	0x52, 0x49, 0x46, 0x46, // RIFF
	0x28, 0x00, 0x00, 0x00, // ChunkSize (36 + 4 = 40)
	0x57, 0x41, 0x56, 0x45, // WAVE
	0x66, 0x6D, 0x74, 0x20, // fmt
	0x10, 0x00, 0x00, 0x00, // Subchunk1Size (16)
	0x01, 0x00, // AudioFormat (1 = PCM)
	0x01, 0x00, // NumChannels (1)
	0x22, 0x56, 0x00, 0x00, // SampleRate (22050)
	0x44, 0xAC, 0x00, 0x00, // ByteRate (44100)
	0x02, 0x00, // BlockAlign (2)
	0x10, 0x00, // BitsPerSample (16)
	0x64, 0x61, 0x74, 0x61, // data
	0x04, 0x00, 0x00, 0x00, // Subchunk2Size (4)
	0xE8, 0x03, 0x18, 0xFC, // 1000, -1000
}

func samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func TestLoadPCMConvertsMonoWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "start.wav")
	if err := os.WriteFile(path, monoWav, 0644); err != nil {
		t.Fatal(err)
	}

	pcm, err := LoadPCM(path)
	if err != nil {
		t.Fatalf("LoadPCM failed: %v", err)
	}

	got := samples(pcm)
	// 2 mono frames at 22.05kHz become 4 stereo frames at 44.1kHz.
	if len(got) != 8 {
		t.Fatalf("expected 8 samples, got %d: %v", len(got), got)
	}
	if got[0] != 1000 || got[1] != 1000 {
		t.Errorf("first frame should be duplicated to both channels, got %v", got[:2])
	}
	if got[2] != 0 || got[3] != 0 {
		t.Errorf("interpolated frame should sit halfway, got %v", got[2:4])
	}
	if got[6] != -1000 || got[7] != -1000 {
		t.Errorf("last frame should hold the final sample, got %v", got[6:])
	}
}

func TestLoadPCMRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "start.ogg")
	if err := os.WriteFile(path, []byte("OggS"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPCM(path); err == nil {
		t.Error("expected an error for an unsupported format")
	}
}

func TestConvertAudioPassThrough(t *testing.T) {
	in := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x00}
	out := convertAudio(in, sampleRate, 2, sampleRate, 2)
	if string(out) != string(in) {
		t.Errorf("matching formats should pass through, got %x", out)
	}
}

func TestNilCuesAreSilent(t *testing.T) {
	// A player without cues must not touch the audio context.
	p := &Player{}
	p.play(nil)
}
