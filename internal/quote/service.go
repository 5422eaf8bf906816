// Package quote provides the HTTP handlers for single quotes, comparisons
// and read-only views over the live rate table.
//
// All monetary values use shopspring/decimal internally and are written to
// the wire as fixed two-decimal strings.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/patabima/pricing-engine/internal/compare"
	"github.com/patabima/pricing-engine/internal/events"
	"github.com/patabima/pricing-engine/internal/metrics"
	"github.com/patabima/pricing-engine/internal/model"
	"github.com/patabima/pricing-engine/internal/premium"
	"github.com/patabima/pricing-engine/internal/ratetable"
)

// StatusClientClosedRequest is returned when the caller went away mid-request.
const StatusClientClosedRequest = 499

// Service handles quote and comparison requests. Single quotes and
// comparisons price through the same engine.
type Service struct {
	engine   *premium.Engine
	rates    *ratetable.Table
	compare  *compare.Orchestrator
	events   events.Publisher
	wsHub    *WSHub // optional WebSocket hub for reload notices
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

// NewService creates a new quote service. Pass nil for pub or hub when
// event publishing or WebSocket notices are not needed.
func NewService(engine *premium.Engine, rates *ratetable.Table, orch *compare.Orchestrator,
	pub events.Publisher, hub *WSHub, log zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{
		engine:   engine,
		rates:    rates,
		compare:  orch,
		events:   pub,
		wsHub:    hub,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With().Str("component", "quote").Logger(),
		now:      time.Now,
	}
}

// Routes mounts the service's endpoints on r.
func (s *Service) Routes(r chi.Router) {
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}

	r.Post("/quotes", s.Quote)
	r.Post("/quotes/compare", s.Compare)

	r.Get("/subcategories", s.ListSubcategories)
	r.Get("/subcategories/{code}/underwriters", s.SubcategoryUnderwriters)
	r.Get("/underwriters", s.ListUnderwriters)
	r.Get("/rates", s.RatesInfo)
}

// --- HTTP Handlers ---

// Quote handles POST /api/v1/quotes
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	in, err := toInputs(req.SumInsured, req.Risk)
	if err != nil {
		s.writeError(w, err)
		return
	}

	snap, ok := s.snapshot(w)
	if !ok {
		return
	}

	b, err := s.engine.Price(r.Context(), snap, req.Subcategory, req.Underwriter, in)
	metrics.QuotesTotal.WithLabelValues(subcategoryLabel(snap, req.Subcategory), outcomeCode(err)).Inc()
	if err != nil {
		s.log.Debug().Err(err).
			Str("subcategory", req.Subcategory).
			Str("underwriter", req.Underwriter).
			Msg("quote failed")
		s.writeError(w, err)
		return
	}

	s.publish(r.Context(), events.QuotePriced(b, s.now()))
	writeJSON(w, http.StatusOK, NewBreakdownResponse(b))
}

// Compare handles POST /api/v1/quotes/compare
func (s *Service) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if !s.decode(w, r, &req) {
		return
	}
	in, err := toInputs(req.SumInsured, req.Risk)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if _, ok := s.snapshot(w); !ok {
		return
	}

	res, err := s.compare.Compare(r.Context(), req.Subcategory, req.Underwriters, in)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.Info().
		Str("comparison_id", res.ID).
		Str("subcategory", res.SubcategoryCode).
		Int("quoted", len(res.Entries)).
		Int("failed", len(res.Failures)).
		Msg("comparison served")

	s.publish(r.Context(), events.ComparisonCompleted(res))
	writeJSON(w, http.StatusOK, NewComparisonResponse(res))
}

// ListSubcategories handles GET /api/v1/subcategories
func (s *Service) ListSubcategories(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Subcategories())
}

// ListUnderwriters handles GET /api/v1/underwriters
func (s *Service) ListUnderwriters(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Underwriters())
}

// SubcategoryUnderwriters handles GET /api/v1/subcategories/{code}/underwriters
// Returns the underwriters holding at least one rate for the subcategory,
// which is the list a comparison screen offers.
func (s *Service) SubcategoryUnderwriters(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	code := chi.URLParam(r, "code")
	if _, found := snap.Subcategory(code); !found {
		s.writeError(w, fmt.Errorf("%w: %s", model.ErrUnknownSubcategory, model.NormalizeCode(code)))
		return
	}
	writeJSON(w, http.StatusOK, snap.UnderwritersFor(code))
}

// RatesInfo handles GET /api/v1/rates
func (s *Service) RatesInfo(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, RatesResponse{
		Version:       snap.Version(),
		LoadedAt:      snap.LoadedAt(),
		Subcategories: len(snap.Subcategories()),
		Underwriters:  len(snap.Underwriters()),
		Rules:         snap.RuleCount(),
	})
}

// --- Helpers ---

func (s *Service) snapshot(w http.ResponseWriter) (*ratetable.Snapshot, bool) {
	snap := s.rates.Current()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "rate table not loaded", Code: model.CodeInternal})
		return nil, false
	}
	return snap, true
}

func subcategoryLabel(snap *ratetable.Snapshot, code string) string {
	if sc, ok := snap.Subcategory(code); ok {
		return sc.Code
	}
	return metrics.UnknownLabel
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Service) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: model.CodeInvalidInput})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: validationMessage(err), Code: model.CodeInvalidInput})
		return false
	}
	return true
}

// publish sends evt without tying it to the request's lifetime.
func (s *Service) publish(ctx context.Context, evt events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn().Err(err).Str("type", evt.Type).Msg("event not published")
	}
}

// writeError maps err onto its wire code and HTTP status.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	code := model.ErrorCode(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var nq *compare.NoQuotesError
	if errors.As(err, &nq) {
		resp.Errors = newFailures(nq.Failures)
	}
	if code == model.CodeInternal {
		s.log.Error().Err(err).Msg("unexpected pricing error")
		resp.Error = "internal error"
	}
	writeJSON(w, httpStatus(code), resp)
}

func httpStatus(code string) int {
	switch code {
	case model.CodeUnknownSubcategory, model.CodeUnknownUnderwriter, model.CodeRateNotFound:
		return http.StatusNotFound
	case model.CodeInvalidInput:
		return http.StatusBadRequest
	case model.CodeRiskDeclined, model.CodeNoQuotesAvailable:
		return http.StatusUnprocessableEntity
	case model.CodeUnderwriterTimeout:
		return http.StatusGatewayTimeout
	case model.CodeCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func outcomeCode(err error) string {
	if err == nil {
		return "OK"
	}
	return model.ErrorCode(err)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fe.Namespace() + " failed " + fe.Tag() + " validation"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
