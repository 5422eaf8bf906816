package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/patabima/pricing-engine/internal/compare"
	"github.com/patabima/pricing-engine/internal/model"
	"github.com/patabima/pricing-engine/internal/premium"
	"github.com/patabima/pricing-engine/internal/quote"
)

// inputFlags are the risk inputs common to quote and compare.
type inputFlags struct {
	subcategory string
	sumInsured  string
	vehicleAge  int
	coverDays   int
	startDate   string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.subcategory, "subcategory", "s", "", "subcategory code [REQUIRED]")
	cmd.Flags().StringVar(&f.sumInsured, "sum-insured", "", "sum insured (required for percentage products)")
	cmd.Flags().IntVar(&f.vehicleAge, "vehicle-age", -1, "vehicle age in years")
	cmd.Flags().IntVar(&f.coverDays, "cover-days", 0, "cover period in days (0 uses the product default)")
	cmd.Flags().StringVar(&f.startDate, "start", "", "cover start date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("subcategory")
}

func (f *inputFlags) inputs() (model.Inputs, error) {
	var in model.Inputs
	if f.sumInsured != "" {
		si, err := decimal.NewFromString(strings.ReplaceAll(f.sumInsured, ",", ""))
		if err != nil {
			return in, fmt.Errorf("%w: sum insured %q is not a number", model.ErrInvalidInput, f.sumInsured)
		}
		in.SumInsured = &si
	}
	if f.vehicleAge >= 0 {
		age := f.vehicleAge
		in.Risk.VehicleAge = &age
	}
	in.Risk.CoverDays = f.coverDays
	if f.startDate != "" {
		start, err := time.Parse("2006-01-02", f.startDate)
		if err != nil {
			return in, fmt.Errorf("%w: start date must be YYYY-MM-DD", model.ErrInvalidInput)
		}
		in.Risk.CoverStartDate = &start
	}
	return in, nil
}

func newQuoteCmd(opts *options) *cobra.Command {
	var (
		flags       inputFlags
		underwriter string
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price one underwriter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := flags.inputs()
			if err != nil {
				return err
			}
			table, err := opts.loadTable(cmd.Context())
			if err != nil {
				return err
			}
			b, err := premium.NewEngine().Price(cmd.Context(), table.Current(), flags.subcategory, underwriter, in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, quote.NewBreakdownResponse(b))
			}
			printBreakdown(out, b)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&underwriter, "underwriter", "u", "", "underwriter code [REQUIRED]")
	_ = cmd.MarkFlagRequired("underwriter")
	return cmd
}

func newCompareCmd(opts *options) *cobra.Command {
	var (
		flags        inputFlags
		underwriters []string
		all          bool
		parallel     int
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Price and rank several underwriters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := flags.inputs()
			if err != nil {
				return err
			}
			table, err := opts.loadTable(cmd.Context())
			if err != nil {
				return err
			}
			if all {
				underwriters = underwriters[:0]
				for _, uw := range table.Current().UnderwritersFor(flags.subcategory) {
					underwriters = append(underwriters, uw.Code)
				}
			}
			orch, err := compare.New(premium.NewEngine(), table, compare.Options{
				Timeout:     opts.timeout,
				MaxParallel: parallel,
			}, opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			res, err := orch.Compare(cmd.Context(), flags.subcategory, underwriters, in)
			out := cmd.OutOrStdout()
			if err != nil {
				var nq *compare.NoQuotesError
				if errors.As(err, &nq) {
					printFailures(out, nq.Failures)
				}
				return err
			}
			if opts.jsonOut {
				return writeJSON(out, quote.NewComparisonResponse(res))
			}
			printComparison(out, res)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVarP(&underwriters, "underwriters", "u", nil, "comma-separated underwriter codes")
	cmd.Flags().BoolVar(&all, "all", false, "compare every underwriter offering the subcategory")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "max underwriters priced at once (0 = all)")
	cmd.MarkFlagsOneRequired("underwriters", "all")
	cmd.MarkFlagsMutuallyExclusive("underwriters", "all")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBreakdown(w io.Writer, b *model.PremiumBreakdown) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fprintf(tw, "Underwriter\t%s (%s)\n", b.UnderwriterName, b.UnderwriterCode)
	fprintf(tw, "Subcategory\t%s\n", b.SubcategoryCode)
	fprintf(tw, "Base premium\t%s\n", b.BasePremium.StringFixed(model.MoneyScale))
	fprintf(tw, "Training levy\t%s\n", b.TrainingLevy.StringFixed(model.MoneyScale))
	fprintf(tw, "PCF levy\t%s\n", b.PCFLevy.StringFixed(model.MoneyScale))
	fprintf(tw, "Stamp duty\t%s\n", b.StampDuty.StringFixed(model.MoneyScale))
	fprintf(tw, "Total premium\t%s\n", b.TotalPremium.StringFixed(model.MoneyScale))
	if t := b.PolicyTerm; t != nil {
		fprintf(tw, "Cover\t%s to %s (%d days)\n", t.StartDate.Format("2006-01-02"), t.EndDate.Format("2006-01-02"), t.Days)
	}
	fprintf(tw, "Rates version\t%s\n", b.RatesVersion)
	_ = tw.Flush()
}

func printComparison(w io.Writer, res *model.ComparisonResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fprintf(tw, "#\tUNDERWRITER\tBASE\tLEVIES\tTOTAL\tPOSITION\n")
	for i, e := range res.Entries {
		b := e.Breakdown
		levies := b.TrainingLevy.Add(b.PCFLevy).Add(b.StampDuty)
		fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, e.UnderwriterCode,
			b.BasePremium.StringFixed(model.MoneyScale),
			levies.StringFixed(model.MoneyScale),
			b.TotalPremium.StringFixed(model.MoneyScale),
			e.MarketPosition)
	}
	_ = tw.Flush()
	printFailures(w, res.Failures)
	fprintf(w, "rates %s, comparison %s\n", res.RatesVersion, res.ID)
}

func printFailures(w io.Writer, failures []model.ComparisonFailure) {
	for _, f := range failures {
		fprintf(w, "! %s %s: %s\n", f.UnderwriterCode, f.Code, f.Error)
	}
}
