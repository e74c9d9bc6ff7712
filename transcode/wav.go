package transcode

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/narevent/REA/algorithms/common"
)

// ErrUnsupportedWAV is returned for files the native WAV reader cannot handle
var ErrUnsupportedWAV = errors.New("unsupported wav file")

// DecodeWAV reads a PCM WAV file and downmixes it to mono at its native sample rate
func DecodeWAV(filename string) (*AudioData, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedWAV, filename)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedWAV, filename, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %s has no sample rate", ErrUnsupportedWAV, filename)
	}

	pcm := downmix(buf)
	if len(pcm) == 0 {
		return nil, ErrNoAudio
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: buf.Format.SampleRate,
		Duration:   samplesDuration(len(pcm), buf.Format.SampleRate),
		Source:     filename,
		Codec:      "pcm",
	}, nil
}

// downmix scales integer PCM to [-1, 1) and averages interleaved channels
func downmix(buf *audio.IntBuffer) []float64 {
	data := buf.Data
	if buf.SourceBitDepth == 8 {
		// 8-bit WAV is unsigned around 128
		data = make([]int, len(buf.Data))
		for i, v := range buf.Data {
			data[i] = v - 128
		}
	}
	samples := common.IntsToFloat64(data, buf.SourceBitDepth, nil)

	channels := buf.Format.NumChannels
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}
