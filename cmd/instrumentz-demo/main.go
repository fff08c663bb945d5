// instrumentz-demo runs a synthetic nested workload through the tracing
// agent and reports the collected traces through the log transport.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoobzio/instrumentz"
)

var (
	configPath string
	envPath    string
	endpoints  []string
	traceCount int
	token      string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "instrumentz-demo",
	Short:        "Exercise the instrumentz tracing agent with a synthetic workload",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Record synthetic traces and flush them to the log transport",
	Long: "Loads configuration from a .env file, INSTRUMENTZ_* environment variables\n" +
		"and an optional YAML file, starts the agent, records --traces traces per\n" +
		"endpoint and stops the agent, which flushes every buffered trace.",
	RunE: runDemo,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agent version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), instrumentz.Version)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, versionCmd)
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file (optional)")
	runCmd.Flags().StringVar(&envPath, "env", ".env", "Path to a .env file (ignored when missing)")
	runCmd.Flags().StringSliceVar(&endpoints, "endpoint", []string{"users#index", "users#show", "health#check"}, "Endpoints to trace")
	runCmd.Flags().IntVar(&traceCount, "traces", 3, "Traces to record per endpoint")
	runCmd.Flags().StringVar(&token, "token", "", "Authentication token (overrides INSTRUMENTZ_TOKEN)")
}

func loadConfig() (instrumentz.Config, error) {
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return instrumentz.Config{}, fmt.Errorf("load %s: %w", envPath, err)
	}

	cfg, err := instrumentz.LoadConfigFromEnv()
	if err != nil {
		return cfg, err
	}
	if configPath != "" {
		if cfg, err = instrumentz.LoadConfigFile(configPath, cfg); err != nil {
			return cfg, err
		}
	}
	if token != "" {
		cfg.Token = token
	}
	return cfg, nil
}

func runDemo(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := instrumentz.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	cfg.Logger = logger

	agent := instrumentz.NewAgent(logger)
	if _, err := agent.Start(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	repo := &userRepository{tracer: agent}
	find := instrumentz.WrapMethodValue(agent, instrumentz.InstanceMethod(repo, "Find"), repo.Find)

	for _, endpoint := range endpoints {
		for n := 0; n < traceCount; n++ {
			err := agent.Trace(ctx, endpoint, "app.http.request", func(ctx context.Context, _ *instrumentz.TraceScope) error {
				if _, err := find(ctx); err != nil {
					return err
				}
				return agent.Instrument(ctx, "view.render", "users/show.html", func(ctx context.Context, _ *instrumentz.SpanScope) error {
					time.Sleep(time.Millisecond)
					return agent.Disable(ctx, func(ctx context.Context) error {
						return instrumentz.InstrumentSQL(ctx, agent, "", "UPDATE sessions SET seen_at = now()", sleep)
					})
				})
			})
			if err != nil {
				logger.Warn("workload failed", zap.String("endpoint", endpoint), zap.Error(err))
			}
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return agent.Stop(stopCtx)
}

type userRepository struct {
	tracer instrumentz.Tracer
}

// Find simulates a lookup backed by one SQL query.
func (r *userRepository) Find(ctx context.Context) (string, error) {
	return "alice", instrumentz.InstrumentSQL(ctx, r.tracer, "", "SELECT * FROM users WHERE id = 42", sleep)
}

func sleep(context.Context, *instrumentz.SpanScope) error {
	time.Sleep(500 * time.Microsecond)
	return nil
}
