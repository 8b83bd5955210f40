// Package dashboard serves sweep results over HTTP so finished runs can
// be browsed and compared without reopening the database by hand.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/dmaloney/wheelhouse/internal/storage"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     *storage.Store
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

// ResultView is the wire shape of one stored run.
type ResultView struct {
	Period           string    `json:"period"`
	DeltaBand        string    `json:"delta_band"`
	RSIThreshold     float64   `json:"rsi_threshold"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	TotalReturn      float64   `json:"total_return"`
	AnnualReturn     float64   `json:"annual_return"`
	SharpeRatio      float64   `json:"sharpe_ratio"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	WinRate          float64   `json:"win_rate"`
	TotalTrades      int       `json:"total_trades"`
	FinalValue       float64   `json:"final_value"`
	PremiumCollected float64   `json:"premium_collected"`
	Assignments      int       `json:"assignments"`
	FailureReason    string    `json:"failure_reason,omitempty"`
}

func NewServer(cfg Config, store *storage.Store, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/api/results", s.handleGetResults)
	s.router.Get("/api/results/top", s.handleGetTopResults)
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting results dashboard on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.Results()
	if err != nil {
		s.logger.WithError(err).Error("Failed to load results")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, toViews(rows))
}

func (s *Server) handleGetTopResults(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	rows, err := s.store.TopByReturn(n)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load top results")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, toViews(rows))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func toViews(rows []storage.ResultRow) []ResultView {
	views := make([]ResultView, 0, len(rows))
	for _, row := range rows {
		views = append(views, ResultView{
			Period:           row.Period,
			DeltaBand:        row.DeltaBand,
			RSIThreshold:     row.RSIThreshold,
			Start:            row.Start,
			End:              row.End,
			TotalReturn:      row.TotalReturn,
			AnnualReturn:     row.AnnualReturn,
			SharpeRatio:      row.SharpeRatio,
			MaxDrawdown:      row.MaxDrawdown,
			WinRate:          row.WinRate,
			TotalTrades:      row.TotalTrades,
			FinalValue:       row.FinalValue,
			PremiumCollected: row.PremiumCollected,
			Assignments:      row.Assignments,
			FailureReason:    row.FailureReason,
		})
	}
	return views
}
