package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/narevent/REA/capture"
	"github.com/narevent/REA/session"
)

var (
	listenDevice string
	listenRate   int
	listenList   bool
)

func init() {
	listenCmd.Flags().StringVar(&listenDevice, "device", "", "input device name, empty for the system default")
	listenCmd.Flags().IntVar(&listenRate, "rate", displayRate, "analysis buffers per second")
	listenCmd.Flags().BoolVar(&listenList, "list-devices", false, "list input devices and exit")
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Detects notes from the microphone until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenList {
			names, err := capture.InputDevices()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}
		if listenRate < 1 {
			return fmt.Errorf("rate must be positive, got %d", listenRate)
		}

		mic := capture.NewMicrophone(capture.Config{
			SampleRate:  cfg.SampleRate,
			CaptureSize: cfg.CaptureSize,
			Hop:         max(1, cfg.SampleRate/listenRate),
			Device:      listenDevice,
		})

		p := newPrinter(cmd.OutOrStdout())
		driver, err := session.NewDriver(cfg, mic, session.WithHandler(p.event))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return driver.Run(ctx)
	},
}
