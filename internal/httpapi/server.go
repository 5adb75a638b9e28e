// Package httpapi implements C9: the HTTP surface composing C1–C8 and C11
// for each endpoint in §6. Mux setup, the listen-and-graceful-shutdown
// loop, and the outermost panic recovery are adapted from the teacher's
// internal/dashboard.Server.runServer — the same http.ServeMux + setup
// callback + context-cancelled shutdown shape, generalized from one
// dashboard/metrics mux to the full authenticated API surface.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/chain"
	"github.com/resi-labs-ai/resi-labs-api/internal/commitment"
	"github.com/resi-labs-ai/resi-labs-api/internal/config"
	"github.com/resi-labs-ai/resi-labs-api/internal/credentials"
	"github.com/resi-labs-ai/resi-labs-api/internal/errs"
	"github.com/resi-labs-ai/resi-labs-api/internal/health"
	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
	"github.com/resi-labs-ai/resi-labs-api/internal/metrics"
	"github.com/resi-labs-ai/resi-labs-api/internal/ratelimit"
	"github.com/resi-labs-ai/resi-labs-api/internal/scheduler"
	"github.com/resi-labs-ai/resi-labs-api/internal/selfstats"
	"github.com/resi-labs-ai/resi-labs-api/internal/validatorupload"
	"github.com/resi-labs-ai/resi-labs-api/internal/zipcodestore"
)

type Server struct {
	cfg        config.Config
	validator  *commitment.Validator
	limiter    *ratelimit.Limiter
	minter     *credentials.Minter
	sched      *scheduler.Scheduler
	uploadSvc  *validatorupload.Service
	chainView  *chain.View
	store      *zipcodestore.Store
	exporter   *metrics.Exporter
	checker    *health.Checker
	stats      *selfstats.Monitor
	deadline   time.Duration
}

func NewServer(
	cfg config.Config,
	validator *commitment.Validator,
	limiter *ratelimit.Limiter,
	minter *credentials.Minter,
	sched *scheduler.Scheduler,
	uploadSvc *validatorupload.Service,
	chainView *chain.View,
	store *zipcodestore.Store,
	exporter *metrics.Exporter,
	checker *health.Checker,
	stats *selfstats.Monitor,
) *Server {
	return &Server{
		cfg:       cfg,
		validator: validator,
		limiter:   limiter,
		minter:    minter,
		sched:     sched,
		uploadSvc: uploadSvc,
		chainView: chainView,
		store:     store,
		exporter:  exporter,
		checker:   checker,
		stats:     stats,
		deadline:  minDeadline(cfg),
	}
}

// minDeadline is §5's "min(VALIDATOR_VERIFICATION_TIMEOUT,
// SIGNATURE_VERIFICATION_TIMEOUT, S3_OPERATION_TIMEOUT, db_timeout)".
func minDeadline(cfg config.Config) time.Duration {
	d := config.ParseDuration(cfg.Advanced.ValidatorVerificationTimeout)
	candidates := []time.Duration{
		config.ParseDuration(cfg.Advanced.SignatureVerificationTimeout),
		config.ParseDuration(cfg.Store.OperationTimeout),
		config.ParseDuration(cfg.Advanced.DBTimeout),
	}
	for _, c := range candidates {
		if c > 0 && (d <= 0 || c < d) {
			d = c
		}
	}
	if d <= 0 {
		d = 5 * time.Second
	}
	return d
}

func (s *Server) Start(ctx context.Context) {
	go s.runServer(ctx, s.cfg.Server.Port, s.routes)
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthcheck", s.wrap("healthcheck", s.handleHealthcheck))
	mux.HandleFunc("/rate-limits", s.wrap("rate-limits", s.handleRateLimits))
	mux.HandleFunc("/get-folder-access", s.wrap("get-folder-access", s.handleFolderAccess))
	mux.HandleFunc("/get-validator-access", s.wrap("get-validator-access", s.handleValidatorAccess))
	mux.HandleFunc("/get-miner-specific-access", s.wrap("get-miner-specific-access", s.handleMinerSpecificAccess))
	mux.HandleFunc("/api/v1/s3-access/validator-upload", s.wrap("validator-upload", s.handleValidatorUpload))
	mux.HandleFunc("/api/v1/zipcode-assignments/current", s.wrap("zipcode-current", s.handleZipcodeCurrent))
	mux.HandleFunc("/api/v1/zipcode-assignments/epoch/", s.wrap("zipcode-epoch", s.handleZipcodeEpoch))
	mux.HandleFunc("/api/v1/zipcode-assignments/stats", s.wrap("zipcode-stats", s.handleZipcodeStats))
	mux.HandleFunc("/commitment-formats", s.wrap("commitment-formats", s.handleCommitmentFormats))
	mux.HandleFunc("/structure-info", s.wrap("structure-info", s.handleStructureInfo))
	mux.HandleFunc("/docs", s.wrap("docs", s.handleDocs))
	mux.HandleFunc("/openapi.json", s.wrap("openapi", s.handleOpenAPI))
}

func (s *Server) runServer(ctx context.Context, port int, setup func(*http.ServeMux)) {
	mux := http.NewServeMux()
	setup(mux)

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{Addr: addr, Handler: mux}

	logger.Info("HTTP", "listening on %s", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP", "graceful shutdown failed: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("HTTP", "server failed on %s: %v", addr, err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// wrap is the single chain every route goes through: a hard deadline, a
// panic recovery boundary that never lets a handler crash the process
// (per §7: "no panics cross handler boundaries"), and request/error
// metrics + self-stats counting keyed on the final status code.
func (s *Server) wrap(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.deadline)
		defer cancel()
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if rr := recover(); rr != nil {
				logger.Error("HTTP", "panic in %s: %v", route, rr)
				writeError(rec, errs.New(errs.Internal, "internal error"))
			}
			isError := rec.status >= 400
			isTimeout := ctx.Err() == context.DeadlineExceeded
			if s.exporter != nil {
				s.exporter.ObserveRequest(route, fmt.Sprintf("%d", rec.status))
			}
			if s.stats != nil {
				s.stats.Count(isError, isTimeout)
			}
		}()

		h(rec, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	e, ok := errs.As(err)
	if !ok {
		e = errs.Wrap(errs.Internal, "unexpected error", err)
	}
	writeJSON(w, e.HTTPStatus(), e.Payload())
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.Wrap(errs.AuthMalformed, "request body is not valid JSON", err)
	}
	return nil
}
