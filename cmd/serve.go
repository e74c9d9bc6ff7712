package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/narevent/REA/server"
)

var (
	serveAddr    string
	serveOrigins []string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "origins", []string{"*"}, "allowed CORS origins")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Streams note events to websocket clients",
	Long: `serve accepts websocket connections on /ws/pitch. Each binary message is one
capture buffer of little-endian float32 samples; note events are sent back as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config := server.DefaultConfig()
		config.Addr = serveAddr
		config.AllowedOrigins = serveOrigins
		config.Engine = cfg

		s, err := server.New(config)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return s.ListenAndServe(ctx)
	},
}
