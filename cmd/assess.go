package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/narevent/REA/assessment"
	"github.com/narevent/REA/engine"
	"github.com/narevent/REA/session"
)

var (
	assessExpect []string
	assessMIDI   string
	assessHop    int
)

func init() {
	assessCmd.Flags().StringSliceVar(&assessExpect, "expect", nil, `expected notes, e.g. "c/4,d/4,eb/4"`)
	assessCmd.Flags().StringVar(&assessMIDI, "midi", "", "MIDI file holding the expected melody")
	assessCmd.Flags().IntVar(&assessHop, "hop", 0, "samples between buffers, 0 for one display refresh")
	rootCmd.AddCommand(assessCmd)
}

func expectedNotes() ([]assessment.ExpectedNote, error) {
	switch {
	case assessMIDI != "" && len(assessExpect) > 0:
		return nil, errors.New("use either --expect or --midi, not both")
	case assessMIDI != "":
		return assessment.LoadMIDI(assessMIDI)
	case len(assessExpect) > 0:
		return assessment.ParseKeys(assessExpect)
	default:
		return nil, errors.New("one of --expect or --midi is required")
	}
}

var assessCmd = &cobra.Command{
	Use:   "assess <file>",
	Short: "Scores a sung or played recording against an expected melody",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expected, err := expectedNotes()
		if err != nil {
			return err
		}

		p := newPrinter(cmd.OutOrStdout())
		exercise, err := assessment.New(expected,
			assessment.OnMatch(func(exp assessment.ExpectedNote, ev engine.Event) {
				if !jsonOutput {
					fmt.Fprintf(p.out, "matched %-4s at frame %d (%+d¢)\n", exp.Label(), ev.Frame, ev.Cents)
				}
			}),
		)
		if err != nil {
			return err
		}

		audio, err := decodeAudio(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		src, err := session.NewBufferSource(audio.PCM, hopFor(assessHop, audio.SampleRate))
		if err != nil {
			return err
		}

		driver, err := session.NewDriver(cfg, src, session.WithHandler(exercise.Handle))
		if err != nil {
			return err
		}
		if err := driver.Run(cmd.Context()); err != nil {
			return err
		}

		result := exercise.Result()
		if jsonOutput {
			p.value(result)
			return nil
		}

		if next, ok := exercise.Current(); ok {
			fmt.Fprintf(p.out, "stopped before %s\n", next.Label())
		}
		fmt.Fprintf(p.out, "%d/%d correct, %d%% (%s)\n", result.Correct, result.Total, result.Accuracy, result.Rating)
		return nil
	},
}
