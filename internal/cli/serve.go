package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/peterkovacs/vanity/internal/experiment"
	"github.com/peterkovacs/vanity/internal/server"
	"github.com/peterkovacs/vanity/internal/store"
)

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	var (
		port       int
		collecting bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the beacon and scoring API.

With --collecting=false the server still assigns deterministically but
records nothing, for staging environments that must not pollute counts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			slog.SetDefault(log)

			return withStore(func(s *store.SQLiteStore) error {
				counters, cleanup, err := counterStore(s)
				if err != nil {
					return err
				}
				defer cleanup()

				engine := experiment.NewEngine(counters,
					experiment.WithCollecting(collecting),
					experiment.WithLogger(log),
				)
				return server.New(s, counters, engine, port, log).Start()
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")
	cmd.Flags().BoolVar(&collecting, "collecting", true, "record participants and conversions")

	return cmd
}
