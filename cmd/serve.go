package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/suppli-hq/suppli-cli/internal/generate"
	"github.com/suppli-hq/suppli-cli/internal/learning"
	"github.com/suppli-hq/suppli-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for order generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		api := &apiServer{
			generator: generate.NewGenerator(st),
			tracker:   learning.NewTracker(st),
			limiter:   rate.NewLimiter(rate.Limit(cfg.Server.RateLimitPerSec), int(cfg.Server.RateLimitPerSec)),
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      api.routes(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go gracefulShutdown(ctx, srv)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// gracefulShutdown waits for the signal context to cancel, then drains
// in-flight requests on a fresh timeout context. Passing the canceled signal
// context to Shutdown would abort connections immediately.
func gracefulShutdown(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	zap.L().Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

type apiServer struct {
	generator *generate.Generator
	tracker   *learning.Tracker
	limiter   *rate.Limiter
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(s.rateLimit)

	r.Get("/health", s.handleHealth)
	r.Post("/orders/generate", s.handleGenerate)
	r.Post("/orders/lines/edit", s.handleEdit)
	r.Get("/learning/biases", s.handleBiases)

	return r
}

func (s *apiServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BusinessID  string   `json:"business_id"`
		PeriodStart string   `json:"period_start"`
		PeriodEnd   string   `json:"period_end"`
		Mode        string   `json:"mode"`
		VendorIDs   []string `json:"vendor_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BusinessID == "" {
		respondError(w, http.StatusBadRequest, "business_id is required")
		return
	}

	mode := model.OrderMode(req.Mode)
	if mode == "" {
		mode = model.ModeGuided
	}
	switch mode {
	case model.ModeGuided, model.ModeFullAuto, model.ModeSimulation:
	default:
		respondError(w, http.StatusBadRequest, "mode must be guided, full_auto, or simulation")
		return
	}

	periodStart, err := time.Parse("2006-01-02", req.PeriodStart)
	if err != nil {
		respondError(w, http.StatusBadRequest, "period_start must be YYYY-MM-DD")
		return
	}
	periodEnd, err := time.Parse("2006-01-02", req.PeriodEnd)
	if err != nil {
		respondError(w, http.StatusBadRequest, "period_end must be YYYY-MM-DD")
		return
	}

	result, err := s.generator.Generate(r.Context(), model.GenerationInput{
		BusinessID:  req.BusinessID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Mode:        mode,
		VendorIDs:   req.VendorIDs,
	})
	if err != nil {
		switch {
		case errors.Is(err, generate.ErrNoVendors):
			respondError(w, http.StatusUnprocessableEntity, "no active vendors found")
		case errors.Is(err, generate.ErrNoProducts):
			respondError(w, http.StatusUnprocessableEntity, "no products linked to the selected vendors")
		default:
			var fetchErr *generate.DataFetchError
			if errors.As(err, &fetchErr) {
				zap.L().Error("generation data fetch failed",
					zap.String("dataset", fetchErr.Dataset),
					zap.Error(fetchErr.Err),
				)
				respondError(w, http.StatusBadGateway, "failed to fetch "+fetchErr.Dataset)
				return
			}
			zap.L().Error("generation failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "generation failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BusinessID  string  `json:"business_id"`
		ProductID   string  `json:"product_id"`
		Recommended float64 `json:"recommended_quantity"`
		Final       float64 `json:"final_quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BusinessID == "" || req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "business_id and product_id are required")
		return
	}

	// The learning write is best-effort and must not block the response.
	go s.tracker.RecordEdit(context.Background(), req.BusinessID, req.ProductID, req.Recommended, req.Final)

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *apiServer) handleBiases(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business")
	if businessID == "" {
		respondError(w, http.StatusBadRequest, "business query parameter is required")
		return
	}
	var productIDs []string
	if raw := r.URL.Query().Get("products"); raw != "" {
		productIDs = strings.Split(raw, ",")
	}

	biases, err := s.tracker.Biases(r.Context(), businessID, productIDs)
	if err != nil {
		zap.L().Error("bias lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "bias lookup failed")
		return
	}

	respondJSON(w, http.StatusOK, biases)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
