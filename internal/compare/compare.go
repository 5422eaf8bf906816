// Package compare prices one request across several underwriters in
// parallel and ranks the results.
package compare

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/patabima/pricing-engine/internal/metrics"
	"github.com/patabima/pricing-engine/internal/model"
	"github.com/patabima/pricing-engine/internal/ratetable"
)

// ErrInvalidOptions is returned by New for unusable orchestrator options.
var ErrInvalidOptions = errors.New("compare: invalid options")

// Pricer is the single-underwriter pricing entry point. premium.Engine
// satisfies it; comparisons must never price through anything else.
type Pricer interface {
	Price(ctx context.Context, snap *ratetable.Snapshot, subcategory, underwriter string, in model.Inputs) (*model.PremiumBreakdown, error)
}

// SnapshotSource hands out the live rate table snapshot.
type SnapshotSource interface {
	Current() *ratetable.Snapshot
}

// Options tunes the fan-out.
type Options struct {
	// Timeout bounds each underwriter's pricing. Zero disables it and is
	// accepted only together with AllowNoTimeout.
	Timeout time.Duration
	// MaxParallel caps concurrently running underwriter tasks. Zero means one
	// task per requested underwriter.
	MaxParallel int
	// AllowNoTimeout permits Timeout == 0. Test environments only.
	AllowNoTimeout bool
}

// NoQuotesError reports a comparison in which every underwriter failed.
// It matches model.ErrNoQuotesAvailable under errors.Is.
type NoQuotesError struct {
	SubcategoryCode string
	Failures        []model.ComparisonFailure
}

func (e *NoQuotesError) Error() string {
	return fmt.Sprintf("%s: all %d underwriters failed for %s",
		model.ErrNoQuotesAvailable, len(e.Failures), e.SubcategoryCode)
}

func (e *NoQuotesError) Unwrap() error {
	return model.ErrNoQuotesAvailable
}

// Orchestrator runs comparisons.
type Orchestrator struct {
	pricer Pricer
	rates  SnapshotSource
	opts   Options
	log    zerolog.Logger
	now    func() time.Time
}

// New creates an orchestrator pricing through pricer against snapshots
// taken from rates.
func New(pricer Pricer, rates SnapshotSource, opts Options, log zerolog.Logger) (*Orchestrator, error) {
	if pricer == nil || rates == nil {
		return nil, fmt.Errorf("%w: pricer and rate source are required", ErrInvalidOptions)
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("%w: negative underwriter timeout %s", ErrInvalidOptions, opts.Timeout)
	}
	if opts.Timeout == 0 && !opts.AllowNoTimeout {
		return nil, fmt.Errorf("%w: underwriter timeout must be set outside test environments", ErrInvalidOptions)
	}
	if opts.MaxParallel < 0 {
		return nil, fmt.Errorf("%w: negative max parallel %d", ErrInvalidOptions, opts.MaxParallel)
	}
	return &Orchestrator{
		pricer: pricer,
		rates:  rates,
		opts:   opts,
		log:    log.With().Str("component", "compare").Logger(),
		now:    time.Now,
	}, nil
}

// outcome is the slot each underwriter task writes exactly once.
type outcome struct {
	breakdown *model.PremiumBreakdown
	err       error
}

// Compare prices in against every code in underwriters and returns the
// ranked result. Individual failures are reported in the result; only a
// comparison with no successful entry returns an error (*NoQuotesError).
// If ctx ends before all tasks report, ctx.Err() is returned and partial
// results are dropped.
func (o *Orchestrator) Compare(ctx context.Context, subcategory string, underwriters []string, in model.Inputs) (*model.ComparisonResult, error) {
	codes, err := normalizeCodes(underwriters)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := o.rates.Current()
	if snap == nil {
		return nil, fmt.Errorf("%w: rate table not loaded", model.ErrRateNotFound)
	}
	subCode := model.NormalizeCode(subcategory)

	start := o.now()
	outcomes := o.dispatch(ctx, snap, subCode, codes, in)

	if err := ctx.Err(); err != nil {
		metrics.ComparisonsTotal.WithLabelValues("canceled").Inc()
		o.log.Debug().Err(err).Str("subcategory", subCode).Msg("comparison abandoned")
		return nil, err
	}

	result := &model.ComparisonResult{
		ID:              uuid.NewString(),
		SubcategoryCode: subCode,
		RatesVersion:    snap.Version(),
		Entries:         make([]model.ComparisonEntry, 0, len(codes)),
		Failures:        []model.ComparisonFailure{},
		CreatedAt:       o.now().UTC(),
	}
	for i, oc := range outcomes {
		if oc.err != nil {
			f := model.ComparisonFailure{
				UnderwriterCode: codes[i],
				Code:            model.ErrorCode(oc.err),
				Error:           oc.err.Error(),
			}
			result.Failures = append(result.Failures, f)
			metrics.UnderwriterFailures.WithLabelValues(underwriterLabel(snap, codes[i]), f.Code).Inc()
			continue
		}
		result.Entries = append(result.Entries, model.ComparisonEntry{
			UnderwriterCode: oc.breakdown.UnderwriterCode,
			UnderwriterName: oc.breakdown.UnderwriterName,
			Breakdown:       *oc.breakdown,
		})
	}
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].UnderwriterCode < result.Failures[j].UnderwriterCode
	})
	metrics.ComparisonLatency.Observe(o.now().Sub(start).Seconds())

	if len(result.Entries) == 0 {
		metrics.ComparisonsTotal.WithLabelValues("no_quotes").Inc()
		o.log.Info().
			Str("subcategory", subCode).
			Int("requested", len(codes)).
			Msg("comparison produced no quotes")
		return nil, &NoQuotesError{SubcategoryCode: subCode, Failures: result.Failures}
	}

	Rank(result.Entries)

	outcomeLabel := "ok"
	if len(result.Failures) > 0 {
		outcomeLabel = "partial"
	}
	metrics.ComparisonsTotal.WithLabelValues(outcomeLabel).Inc()
	o.log.Debug().
		Str("comparison_id", result.ID).
		Str("subcategory", subCode).
		Str("rates_version", result.RatesVersion).
		Int("quoted", len(result.Entries)).
		Int("failed", len(result.Failures)).
		Msg("comparison complete")
	return result, nil
}

func underwriterLabel(snap *ratetable.Snapshot, code string) string {
	if uw, ok := snap.Underwriter(code); ok {
		return uw.Code
	}
	return metrics.UnknownLabel
}

// dispatch runs one task per code and waits for all of them. Slot i of the
// returned slice belongs to codes[i].
func (o *Orchestrator) dispatch(ctx context.Context, snap *ratetable.Snapshot, subcategory string, codes []string, in model.Inputs) []outcome {
	parallel := o.opts.MaxParallel
	if parallel == 0 || parallel > len(codes) {
		parallel = len(codes)
	}

	outcomes := make([]outcome, len(codes))
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup

	for i, code := range codes {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[i] = outcome{err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			outcomes[i] = o.priceOne(ctx, snap, subcategory, code, in)
		}(i, code)
	}

	wg.Wait()
	return outcomes
}

// priceOne prices a single underwriter under the per-task timeout. A pricer
// that ignores its context is abandoned once the deadline passes; its
// eventual result is discarded.
func (o *Orchestrator) priceOne(ctx context.Context, snap *ratetable.Snapshot, subcategory, code string, in model.Inputs) outcome {
	taskCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.opts.Timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		b, err := o.pricer.Price(taskCtx, snap, subcategory, code, in)
		done <- outcome{breakdown: b, err: err}
	}()

	select {
	case oc := <-done:
		if oc.err != nil && errors.Is(oc.err, context.DeadlineExceeded) && ctx.Err() == nil {
			oc.err = timeoutError(code, o.opts.Timeout)
		}
		if oc.err == nil && oc.breakdown == nil {
			oc.err = fmt.Errorf("%w: %s/%s returned no breakdown", model.ErrRateNotFound, subcategory, code)
		}
		return oc
	case <-taskCtx.Done():
		if ctx.Err() != nil {
			return outcome{err: ctx.Err()}
		}
		o.log.Warn().
			Str("subcategory", subcategory).
			Str("underwriter", code).
			Dur("timeout", o.opts.Timeout).
			Msg("underwriter pricing timed out")
		return outcome{err: timeoutError(code, o.opts.Timeout)}
	}
}

func timeoutError(code string, d time.Duration) error {
	return fmt.Errorf("%w: %s after %s", model.ErrUnderwriterTimeout, code, d)
}

// normalizeCodes canonicalises the requested codes, rejecting an empty list,
// blank codes and duplicates.
func normalizeCodes(underwriters []string) ([]string, error) {
	if len(underwriters) == 0 {
		return nil, fmt.Errorf("%w: at least one underwriter is required", model.ErrInvalidInput)
	}
	codes := make([]string, 0, len(underwriters))
	seen := make(map[string]struct{}, len(underwriters))
	for _, raw := range underwriters {
		code := model.NormalizeCode(raw)
		if code == "" {
			return nil, fmt.Errorf("%w: blank underwriter code", model.ErrInvalidInput)
		}
		if _, dup := seen[code]; dup {
			return nil, fmt.Errorf("%w: duplicate underwriter %s", model.ErrInvalidInput, code)
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}
