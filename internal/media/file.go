package media

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/reelcut/playback/internal/util"
	"github.com/reelcut/playback/pkg/core"
)

// LoadWAV decodes a PCM WAV file into memory at the project rate.
func LoadWAV(path string, props core.Properties) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	bitDepth := int(dec.SampleBitDepth())
	if bitDepth == 0 {
		return nil, fmt.Errorf("unknown bit depth for WAV file: %s", path)
	}

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = util.PCMToFloat(v, bitDepth)
	}
	return NewPCM(samples, buf.Format.NumChannels, buf.Format.SampleRate, props)
}

// LoadMP3 decodes an MP3 file into memory at the project rate.
func LoadMP3(path string, props core.Properties) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	// The decoder always yields signed 16-bit little-endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = util.PCMToFloat(int(int16(binary.LittleEndian.Uint16(raw[i*2:]))), 16)
	}
	return NewPCM(samples, stereo, dec.SampleRate(), props)
}
