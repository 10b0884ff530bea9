// Package cli builds the opflow command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/drblury/opflow/internal/channels"
	runtimepkg "github.com/drblury/opflow/internal/runtime"
	configpkg "github.com/drblury/opflow/internal/runtime/config"
	loggingpkg "github.com/drblury/opflow/internal/runtime/logging"
	"github.com/drblury/opflow/transport"
)

// RunFunc starts the pool. Tests replace it to inspect the resolved config.
type RunFunc func(ctx context.Context, conf *configpkg.Config, logger loggingpkg.ServiceLogger) error

// Pool is the default RunFunc.
func Pool(ctx context.Context, conf *configpkg.Config, logger loggingpkg.ServiceLogger) error {
	pool, err := runtimepkg.NewPool(conf, logger, runtimepkg.PoolDependencies{})
	if err != nil {
		return err
	}
	return pool.Run(ctx)
}

// NewRoot constructs the root command with the run and channels commands.
// Environment variables are read through getenv so tests stay hermetic.
func NewRoot(run RunFunc, getenv func(string) string, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "opflow",
		Short:         "Streaming arithmetic request/response processor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(run, getenv, stderr))
	root.AddCommand(newChannelsCommand())
	root.AddCommand(newTransportsCommand())
	return root
}

func newRunCommand(run RunFunc, getenv func(string) string, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consume requests and publish results until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := resolveConfig(cmd, getenv)
			if err != nil {
				return err
			}

			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			logger, err := newLogger(stderr, logLevel, logFormat)
			if err != nil {
				return err
			}

			if err := run(cmd.Context(), conf, logger); err != nil {
				return fmt.Errorf("opflow: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("brokers", nil, "Kafka bootstrap brokers (comma separated or repeated; default localhost:9092)")
	cmd.Flags().String("group-id", "", "Consumer group shared by all workers (default \"opflow\")")
	cmd.Flags().StringArray("input-topic", nil, "Input channel to consume (repeatable)")
	cmd.Flags().Int("num-workers", 0, "Number of workers (default 1)")
	cmd.Flags().String("pubsub", "", "Pub/sub system: "+fmt.Sprint(transport.DefaultRegistry.Names()))
	cmd.Flags().String("log-level", "", "Log level: trace|debug|info|warn|error")
	cmd.Flags().String("log-format", "text", "Log format: text|json")
	cmd.Flags().Bool("metrics", false, "Expose Prometheus metrics")
	cmd.Flags().Int("metrics-port", 0, "Metrics port; setting it enables metrics (default 9090)")
	return cmd
}

// resolveConfig layers defaults, then OPFLOW_* variables, then flags that
// were set explicitly.
func resolveConfig(cmd *cobra.Command, getenv func(string) string) (*configpkg.Config, error) {
	conf := configpkg.Default()
	if err := configpkg.FromLookup(&conf, getenv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("brokers") {
		conf.KafkaBrokers, _ = flags.GetStringSlice("brokers")
	}
	if flags.Changed("group-id") {
		conf.ConsumerGroup, _ = flags.GetString("group-id")
	}
	if flags.Changed("input-topic") {
		conf.InputChannels, _ = flags.GetStringArray("input-topic")
	}
	if flags.Changed("num-workers") {
		conf.Workers, _ = flags.GetInt("num-workers")
	}
	if flags.Changed("pubsub") {
		conf.PubSubSystem, _ = flags.GetString("pubsub")
	}
	if flags.Changed("metrics") {
		conf.MetricsEnabled, _ = flags.GetBool("metrics")
	}
	if flags.Changed("metrics-port") {
		conf.MetricsPort, _ = flags.GetInt("metrics-port")
		conf.MetricsEnabled = true
	}
	return &conf, nil
}

func newLogger(w io.Writer, level, format string) (loggingpkg.ServiceLogger, error) {
	lvl, err := loggingpkg.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	handler, err := loggingpkg.NewHandler(w, lvl, format)
	if err != nil {
		return nil, err
	}
	return loggingpkg.NewSlogServiceLogger(slog.New(handler)), nil
}

func newChannelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List the input channels and where their results go",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			for _, ch := range channels.All() {
				fmt.Fprintf(out, "%-8s -> %s\n", ch.Name(), ch.OutputName())
			}
		},
	}
}

func newTransportsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transports",
		Short: "List the registered pub/sub systems",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			for _, name := range transport.DefaultRegistry.Names() {
				caps := transport.GetCapabilities(name)
				fmt.Fprintf(out, "%-9s offset_commit=%t consumer_groups=%t nack=%t\n",
					name, caps.SupportsOffsetCommit, caps.SupportsConsumerGroups, caps.SupportsNack)
			}
		},
	}
}
