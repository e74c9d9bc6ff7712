package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/narevent/REA/logging"
)

// ErrNoAudio is returned when decoding succeeds but yields no samples
var ErrNoAudio = errors.New("no audio samples decoded")

// AudioData is decoded mono PCM ready for analysis
type AudioData struct {
	PCM        []float64     `json:"-"` // mono samples in [-1, 1]
	SampleRate int           `json:"sample_rate"`
	Duration   time.Duration `json:"duration"`
	Source     string        `json:"source,omitempty"`
	Codec      string        `json:"codec,omitempty"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	MaxDuration      time.Duration `json:"max_duration"`
	FFmpegPath       string        `json:"ffmpeg_path"`  // Path to ffmpeg binary
	FFprobePath      string        `json:"ffprobe_path"` // Path to ffprobe binary
	Timeout          time.Duration `json:"timeout"`      // Timeout for ffmpeg operations
	NativeWAV        bool          `json:"native_wav"`   // decode .wav files without ffmpeg
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 44100,
		MaxDuration:      0, // No limit
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		Timeout:          60 * time.Second,
		NativeWAV:        true,
	}
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// Decoder turns audio files into mono PCM. WAV files are read natively; everything else
// goes through FFmpeg.
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// DecodeFile decodes an audio file. WAV files keep their native sample rate; FFmpeg output is
// resampled to the target rate.
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	if d.config.NativeWAV && strings.EqualFold(filepath.Ext(filename), ".wav") {
		audio, err := DecodeWAV(filename)
		if err == nil {
			return d.truncate(audio), nil
		}
		if !errors.Is(err, ErrUnsupportedWAV) {
			return nil, err
		}
		logger.Debug("WAV not readable natively, falling back to ffmpeg", logging.Fields{
			"reason": err.Error(),
		})
	}

	logger.Debug("Starting audio file decode")

	metadata, err := d.probe(ctx, filename, nil)
	if err != nil {
		logger.Error(err, "Failed to probe audio file")
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
	})

	args := append([]string{"-i", filename}, d.buildFFmpegArgs()...)
	output, err := d.runFFmpeg(ctx, args, nil, logger)
	if err != nil {
		return nil, err
	}

	return d.processFFmpegOutput(output, metadata, filename, logger)
}

// DecodeReader decodes audio of any FFmpeg-supported container from r
func (d *Decoder) DecodeReader(ctx context.Context, r io.Reader) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeReader",
	})

	data, err := io.ReadAll(r)
	if err != nil {
		logger.Error(err, "Failed to read data from reader")
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio data")
	}

	metadata, err := d.probe(ctx, "pipe:0", data)
	if err != nil {
		logger.Error(err, "Failed to probe audio metadata")
		return nil, err
	}

	args := append([]string{"-i", "pipe:0"}, d.buildFFmpegArgs()...)
	output, err := d.runFFmpeg(ctx, args, data, logger)
	if err != nil {
		return nil, err
	}

	return d.processFFmpegOutput(output, metadata, "", logger)
}

func (d *Decoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config.Timeout > 0 {
		return context.WithTimeout(ctx, d.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// probe runs ffprobe against input, reading stdin when data is non-nil
func (d *Decoder) probe(ctx context.Context, input string, data []byte) (*AudioMetadata, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0", // First audio stream only
		input,
	}

	cmd := exec.CommandContext(ctx, d.config.FFprobePath, args...)
	if data != nil {
		cmd.Stdin = bytes.NewReader(data)
	}

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseFFprobeOutput(output)
}

func (d *Decoder) runFFmpeg(ctx context.Context, args []string, stdin []byte, logger logging.Logger) ([]byte, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	args = append(args, "pipe:1")
	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Error(err, "Ffmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}
	return output, nil
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil {
		sampleRate = 44100 // Fallback to common sample rate
	}
	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}
	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// buildFFmpegArgs requests mono float64 little-endian at the target rate without any
// loudness processing, so signal levels stay comparable to live capture
func (d *Decoder) buildFFmpegArgs() []string {
	args := []string{
		"-f", "f64le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	return append(args, "-v", "error")
}

func (d *Decoder) processFFmpegOutput(output []byte, metadata *AudioMetadata, source string, logger logging.Logger) (*AudioData, error) {
	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}

	audio := &AudioData{
		PCM:        samples,
		SampleRate: d.config.TargetSampleRate,
		Duration:   samplesDuration(len(samples), d.config.TargetSampleRate),
		Source:     source,
		Codec:      metadata.Codec,
	}

	logger.Debug("FFmpeg decode completed successfully", logging.Fields{
		"input_sample_rate":  metadata.SampleRate,
		"input_channels":     metadata.Channels,
		"output_samples":     len(samples),
		"output_sample_rate": audio.SampleRate,
		"output_duration":    audio.Duration.Seconds(),
	})

	return audio, nil
}

func (d *Decoder) truncate(audio *AudioData) *AudioData {
	if d.config.MaxDuration <= 0 {
		return audio
	}
	limit := int(d.config.MaxDuration.Seconds() * float64(audio.SampleRate))
	if limit < len(audio.PCM) {
		audio.PCM = audio.PCM[:limit]
		audio.Duration = samplesDuration(limit, audio.SampleRate)
	}
	return audio
}

func samplesDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// bytesToFloat64 converts raw float64 little-endian bytes, dropping a trailing partial sample
func bytesToFloat64(data []byte) []float64 {
	data = data[:len(data)-(len(data)%8)]
	if len(data) == 0 {
		return nil
	}

	samples := make([]float64, len(data)/8)
	for i := range samples {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig checks the configuration and that the ffmpeg tools can be executed
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", d.config.TargetSampleRate)
	}
	if d.config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", d.config.Timeout)
	}

	for _, tool := range []string{d.config.FFmpegPath, d.config.FFprobePath} {
		if err := exec.Command(tool, "-version").Run(); err != nil {
			return fmt.Errorf("%s not available: %w", tool, err)
		}
	}
	return nil
}
