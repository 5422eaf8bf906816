package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/patabima/pricing-engine/internal/ratefeed"
	"github.com/patabima/pricing-engine/internal/reload"
)

func newRatesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Rate feed management (operator only)",
	}
	cmd.AddCommand(newRatesValidateCmd())
	cmd.AddCommand(newRatesReloadCmd(opts))
	return cmd
}

func newRatesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <feed-file>",
		Short: "Check a feed file builds a valid rate table",
		Long: `Loads the feed exactly as the pricing service would and reports
every validation problem. Nothing is published.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := ratefeed.LoadSnapshot(cmd.Context(), ratefeed.NewFileSource(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fprintf(out, "feed %s is valid: %d subcategories, %d underwriters, %d rules\n",
				snap.Version(), len(snap.Subcategories()), len(snap.Underwriters()), snap.RuleCount())

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fprintf(tw, "SUBCATEGORY\tMODEL\tUNDERWRITERS\n")
			for _, sc := range snap.Subcategories() {
				fprintf(tw, "%s\t%s\t%d\n", sc.Code, sc.PricingModel, len(snap.UnderwritersFor(sc.Code)))
			}
			return tw.Flush()
		},
	}
}

func newRatesReloadCmd(opts *options) *cobra.Command {
	var redisURL, channel string
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask running engines to reload their rates",
		Long: `Validates the feed named by --rates, then publishes a reload request on
the Redis channel every engine watches.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := ratefeed.LoadSnapshot(cmd.Context(), ratefeed.NewFileSource(opts.ratesFile))
			if err != nil {
				return fmt.Errorf("refusing to announce an invalid feed: %w", err)
			}
			ropts, err := redis.ParseURL(redisURL)
			if err != nil {
				return fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(ropts)
			defer rdb.Close()

			n, err := reload.Announce(cmd.Context(), rdb, channel, snap.Version())
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "reload of %s announced to %d engines\n", snap.Version(), n)
			return nil
		},
	}
	cmd.Flags().StringVar(&redisURL, "redis", envOr("REDIS_URL", "redis://localhost:6379/0"), "redis URL")
	cmd.Flags().StringVar(&channel, "channel", envOr("RATES_RELOAD_CHANNEL", "pricing:rates:reload"), "reload channel")
	return cmd
}
