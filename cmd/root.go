package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/app"
	"github.com/JakeFAU/stockwatch-monitor/internal/config"
)

// App is the slice of *app.App the commands drive. Tests swap in a fake.
type App interface {
	Run(ctx context.Context) error
	RunOnce(ctx context.Context, w io.Writer) error
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	return app.Build(ctx, cfg)
}

// loadConfig is swapped in tests to avoid touching the environment.
var loadConfig = config.Load

type rootOptions struct {
	cfgFile string
	test    bool
}

// newRootCmd creates and configures the root command.
func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "stockwatch-monitor",
		Short: "Watches the StockWatch dashboard and sends new announcements to Telegram.",
		Long: `stockwatch-monitor polls the StockWatch dashboard on a fixed interval,
remembers which announcements it has already seen, and forwards each new one
to a Telegram chat, oldest first. A small status server reports health and
the size of the seen set.

Use --test to fetch the page once and print the latest announcements without
notifying anyone or touching the seen set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, stdout)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.Flags().BoolVar(&opts.test, "test", false, "run a single check and print a preview")

	return cmd
}

func run(ctx context.Context, opts *rootOptions, stdout io.Writer) error {
	cfg, err := loadConfig(opts.cfgFile)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	instance, err := newApp(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	if opts.test {
		return instance.RunOnce(ctx, stdout)
	}
	return instance.Run(ctx)
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd(os.Stdout)
	if err := root.ExecuteContext(context.Background()); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
