package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/narevent/REA/algorithms/tonal"
	"github.com/narevent/REA/engine"
	"github.com/narevent/REA/logging"
	"github.com/narevent/REA/transcode"
)

// displayRate is the analysis cadence in buffers per second when none is given
const displayRate = 60

var (
	configPath string
	logLevel   string
	a4         float64
	method     string
	jsonOutput bool

	cfg engine.Config
)

var rootCmd = &cobra.Command{
	Use:   "rea",
	Short: "Monophonic pitch detection and note locking",
	Long: `rea detects the pitch of a single voice or instrument, reports it as a
note name with cents, and emits a note only once it has been held steadily.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logging.SetLevel(level)

		cfg = engine.DefaultConfig()
		if configPath != "" {
			if cfg, err = engine.LoadConfig(configPath); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("a4") {
			cfg.A4 = a4
		}
		if cmd.Flags().Changed("method") {
			m, err := tonal.ParseDifferenceMethod(method)
			if err != nil {
				return err
			}
			cfg.DifferenceMethod = string(m)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "JSON engine configuration file")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.Float64Var(&a4, "a4", 440, "reference frequency of A4 in Hz")
	flags.StringVar(&method, "method", string(tonal.DifferenceDirect), "difference function: direct or fft")
	flags.BoolVar(&jsonOutput, "json", false, "print events as JSON lines")
}

// decodeAudio decodes a file and adopts its sample rate for the engine
func decodeAudio(ctx context.Context, path string) (*transcode.AudioData, error) {
	decoderConfig := transcode.DefaultDecoderConfig()
	decoderConfig.TargetSampleRate = cfg.SampleRate

	audio, err := transcode.NewDecoder(decoderConfig).DecodeFile(ctx, path)
	if err != nil {
		return nil, err
	}
	cfg.SampleRate = audio.SampleRate
	return audio, nil
}

// hopFor returns hop when set, else the sample count of one display refresh
func hopFor(hop, sampleRate int) int {
	if hop > 0 {
		return hop
	}
	return max(1, sampleRate/displayRate)
}

type printer struct {
	out  io.Writer
	json *json.Encoder
}

func newPrinter(out io.Writer) *printer {
	p := &printer{out: out}
	if jsonOutput {
		p.json = json.NewEncoder(out)
	}
	return p
}

func (p *printer) event(ev engine.Event) {
	if p.json != nil {
		_ = p.json.Encode(ev)
		return
	}
	if ev.IsSilence() {
		fmt.Fprintf(p.out, "%6d  --\n", ev.Frame)
		return
	}
	fmt.Fprintf(p.out, "%6d  %-4s %+3d¢  %8.2f Hz\n", ev.Frame, ev.Label, ev.Cents, ev.FrequencyHz)
}

func (p *printer) frame(f engine.Frame) {
	if p.json != nil {
		_ = p.json.Encode(f)
		return
	}
	fmt.Fprintf(p.out, "%6d  %7.1f dB  %8.2f Hz  %.2f  %-4s %s\n",
		f.Index, f.LevelDB, f.Smoothed.Frequency, f.Smoothed.Confidence, f.Reading.Label(), f.State)
}

func (p *printer) value(v any) {
	if p.json != nil {
		_ = p.json.Encode(v)
		return
	}
	fmt.Fprintln(p.out, v)
}
