package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"

	"students-timetable/internal/core/services"
	"students-timetable/internal/domain"
	"students-timetable/internal/pkg/config"
	"students-timetable/internal/ports"
)

// Refresher - часть координатора, нужная API.
type Refresher interface {
	Begin() (*services.Cycle, bool)
	State() services.State
	LastReport() (services.CycleReport, bool)
}

// SnapshotState - путь чтения снимка вместе с отпечатками источников.
type SnapshotState interface {
	ports.SnapshotReader
	Fingerprint(source domain.Source) string
	WeekInterval() string
}

// StatusResponse - ответ GET /api/v1/status.
type StatusResponse struct {
	State        string                `json:"state"`
	Version      uint64                `json:"version"`
	Dates        []string              `json:"dates"`
	Fingerprints map[string]string     `json:"fingerprints"`
	WeekInterval string                `json:"week_interval,omitempty"`
	LastReport   *services.CycleReport `json:"last_report,omitempty"`
}

// RefreshResponse - ответ POST /api/v1/refresh.
type RefreshResponse struct {
	CycleID string `json:"cycle_id"`
}

// GroupResponse - ответ GET /api/v1/groups/{groupID}.
type GroupResponse struct {
	Version uint64               `json:"version"`
	Group   domain.GroupSchedule `json:"group"`
}

// Server представляет HTTP-сервер управления
type Server struct {
	HTTPServer *http.Server
	cfg        *config.Config
	refresher  Refresher
	snapshots  SnapshotState
	cycles     *CycleStore
	logger     *slog.Logger

	// Контекст фоновых циклов, отменяется в Shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      conc.WaitGroup
}

// New создает новый экземпляр Server
func New(cfg *config.Config, refresher Refresher, snapshots SnapshotState, cycles *CycleStore, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		refresher: refresher,
		snapshots: snapshots,
		cycles:    cycles,
		logger:    logger,
		baseCtx:   ctx,
		cancel:    cancel,
	}

	chiRouter := chi.NewRouter()

	// Промежуточное ПО
	chiRouter.Use(middleware.Logger)
	chiRouter.Use(middleware.Recoverer)

	chiRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	chiRouter.Handle("/metrics", promhttp.Handler())

	chiRouter.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/cycles/{cycleID}", s.handleCycle)
		r.Get("/timetable", s.handleTimetable)
		r.Get("/groups/{groupID}", s.handleGroup)
	})

	s.HTTPServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      chiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Очистка просроченных записей о циклах
	s.cycles.StartCleanupTicker(ctx, cycleCleanupInterval(cfg.Server.CycleTTL))

	return s, nil
}

func cycleCleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > time.Hour {
		return time.Hour
	}
	return ttl
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots.Read()
	resp := StatusResponse{
		State:        s.refresher.State().String(),
		Version:      s.snapshots.Version(),
		Dates:        make([]string, 0, len(snap.Days)),
		Fingerprints: make(map[string]string, 2),
		WeekInterval: s.snapshots.WeekInterval(),
	}
	for _, day := range snap.Days {
		resp.Dates = append(resp.Dates, day.Date)
	}
	for _, src := range []domain.Source{domain.SourceDay, domain.SourceWeek} {
		if fp := s.snapshots.Fingerprint(src); fp != "" {
			resp.Fingerprints[string(src)] = fp
		}
	}
	if report, ok := s.refresher.LastReport(); ok {
		resp.LastReport = &report
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cycle, ok := s.refresher.Begin()
	if !ok {
		writeError(w, http.StatusConflict, "Обновление уже выполняется")
		return
	}

	s.cycles.Start(cycle.ID)
	s.wg.Go(func() {
		report := cycle.Run(s.baseCtx)
		if err := s.cycles.Finish(report); err != nil {
			s.logger.Warn("cycle record lost", slog.String("cycle_id", cycle.ID), "error", err)
		}
	})

	writeJSON(w, http.StatusAccepted, RefreshResponse{CycleID: cycle.ID})
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cycles.Get(chi.URLParam(r, "cycleID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Цикл не найден")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshots.Read())
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	group, ok := s.snapshots.Group(chi.URLParam(r, "groupID"))
	if !ok {
		writeError(w, http.StatusNotFound, "Группа не найдена")
		return
	}
	writeJSON(w, http.StatusOK, GroupResponse{Version: s.snapshots.Version(), Group: group})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// ListenAndServe запускает HTTP-сервер
func (s *Server) ListenAndServe() error {
	return s.HTTPServer.ListenAndServe()
}

// Shutdown корректно завершает работу HTTP-сервера и ждет фоновые циклы.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Завершение работы HTTP-сервера")
	err := s.HTTPServer.Shutdown(ctx)
	s.cancel()
	s.wg.Wait()
	return err
}
