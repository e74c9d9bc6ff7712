package cmd

import (
	"github.com/spf13/cobra"

	"github.com/narevent/REA/session"
)

var (
	detectHop    int
	detectFrames bool
)

func init() {
	detectCmd.Flags().IntVar(&detectHop, "hop", 0, "samples between buffers, 0 for one display refresh")
	detectCmd.Flags().BoolVar(&detectFrames, "frames", false, "print every frame, not only note events")
	rootCmd.AddCommand(detectCmd)
}

var detectCmd = &cobra.Command{
	Use:   "detect <file>",
	Short: "Prints the notes held in an audio file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		audio, err := decodeAudio(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		src, err := session.NewBufferSource(audio.PCM, hopFor(detectHop, audio.SampleRate))
		if err != nil {
			return err
		}

		p := newPrinter(cmd.OutOrStdout())
		opts := []session.Option{session.WithHandler(p.event)}
		if detectFrames {
			opts = []session.Option{session.WithFrameHandler(p.frame)}
		}

		driver, err := session.NewDriver(cfg, src, opts...)
		if err != nil {
			return err
		}
		if err := driver.Run(cmd.Context()); err != nil {
			return err
		}

		if jsonOutput {
			p.value(driver.LastStats())
		}
		return nil
	},
}
