// cmd/chaos/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"libracatalog/internal/chaos"
	"libracatalog/internal/clients"
	"libracatalog/internal/config"
	"libracatalog/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baseURL     string
		concurrency int
		pause       time.Duration
		only        string
	)

	cmd := &cobra.Command{
		Use:          "chaos",
		Short:        "Run game day experiments against a running libracatalog API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cmd.ErrOrStderr(), cfg)

			c := chaos.Clients{
				Catalog:     clients.NewCatalogClient(baseURL, nil),
				Members:     clients.NewMembershipClient(baseURL, nil),
				Circulation: clients.NewCirculationClient(baseURL, nil),
			}

			engine := chaos.NewEngine(logger)
			if only == "" {
				engine.RegisterExperiments(c, concurrency)
			} else {
				switch only {
				case "concurrent-checkout-race":
					engine.Register(chaos.ConcurrentCheckoutRace(c, concurrency))
				case "repeated-return-idempotence":
					engine.Register(chaos.RepeatedReturnIdempotence(c))
				default:
					return fmt.Errorf("unknown experiment %q", only)
				}
			}

			failed, err := engine.RunAll(cmd.Context(), pause)
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d experiments failed", failed, len(engine.Experiments()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().IntVar(&concurrency, "concurrency", 20, "simultaneous checkouts in the race experiment")
	cmd.Flags().DurationVar(&pause, "pause", 5*time.Second, "wait between experiments")
	cmd.Flags().StringVar(&only, "experiment", "", "run a single experiment by name")
	return cmd
}
