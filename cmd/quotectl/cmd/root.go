// Package cmd provides the quotectl commands: price and compare quotes
// against a rate feed file, validate feeds, and trigger engine reloads.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/patabima/pricing-engine/internal/logging"
	"github.com/patabima/pricing-engine/internal/ratefeed"
	"github.com/patabima/pricing-engine/internal/ratetable"
)

// options shared by every subcommand.
type options struct {
	ratesFile string
	verbose   bool
	jsonOut   bool
	timeout   time.Duration
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "quotectl",
		Short: "Price and compare motor premiums from a rate feed",
		Long: `quotectl prices motor insurance quotes with the same engine the
pricing service runs, reading rates from a feed file.

Examples:
  quotectl quote -s PRIVATE_THIRD_PARTY -u MADISON
  quotectl compare -s PRIVATE_COMPREHENSIVE -u MADISON,UAP,BRITAM --sum-insured 800000
  quotectl rates validate configs/rates.yaml`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.ratesFile, "rates", envOr("RATES_FILE", "configs/rates.yaml"), "rate feed file (YAML or JSON)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of a table")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Second, "per-underwriter pricing timeout")

	root.AddCommand(newQuoteCmd(opts))
	root.AddCommand(newCompareCmd(opts))
	root.AddCommand(newRatesCmd(opts))
	return root
}

// Execute runs the CLI. An interrupt cancels the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (o *options) logger(w io.Writer) zerolog.Logger {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	return logging.New(w, "console", level)
}

func (o *options) loadTable(ctx context.Context) (*ratetable.Table, error) {
	snap, err := ratefeed.LoadSnapshot(ctx, ratefeed.NewFileSource(o.ratesFile))
	if err != nil {
		return nil, err
	}
	return ratetable.NewTable(snap), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fprintf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
