package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"students-timetable/internal/adapters/parser"
	"students-timetable/internal/adapters/source"
	"students-timetable/internal/core/services"
	"students-timetable/internal/domain"
	"students-timetable/internal/pkg/config"
	"students-timetable/internal/render"
	"students-timetable/internal/snapshot"
)

const dayPayload = `{"date":"01.09","groups":[
	{"label":"53 - ПОИТ","rows":[{"slot":"1","subject":"Математика","cabinet":"204"}]},
	{"label":"54 - ПОИТ","rows":[]}
]}`

type emptyDirectory struct{}

func (emptyDirectory) ListSubscribers(context.Context, domain.SubscriberFilter) ([]domain.Subscriber, error) {
	return nil, nil
}

type noopTransport struct{}

func (noopTransport) Send(context.Context, int64, string) error { return nil }

// busyRefresher всегда занят.
type busyRefresher struct{}

func (busyRefresher) Begin() (*services.Cycle, bool)            { return nil, false }
func (busyRefresher) State() services.State                     { return services.StateNotifying }
func (busyRefresher) LastReport() (services.CycleReport, bool) { return services.CycleReport{}, false }

func testConfig() *config.Config {
	return &config.Config{Server: config.Server{Host: "localhost", Port: 8080, CycleTTL: time.Minute}}
}

func newTestServer(t *testing.T) (*Server, *snapshot.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	snaps := snapshot.NewStore(snapshot.WithLogger(logger))
	renderer := render.NewMarkdownRenderer()
	extractor := source.NewExtractor(source.NewMemorySource([]byte(dayPayload)), parser.NewJSONParser())
	dispatcher := services.NewDispatcher(emptyDirectory{}, noopTransport{}, renderer, services.WithDispatcherLogger(logger))
	coordinator := services.NewCoordinator(extractor, services.NewNormalizer(services.WithNormalizerLogger(logger)),
		snaps, dispatcher, renderer, services.WithCoordinatorLogger(logger))

	srv, err := New(testConfig(), coordinator, snaps, NewCycleStore(time.Minute), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, snaps
}

func do(srv *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	srv.HTTPServer.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func TestServer(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("Health Check", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/health")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
	})

	t.Run("Metrics", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/metrics")
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Status before first cycle", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/api/v1/status")
		require.Equal(t, http.StatusOK, rr.Code)

		resp := decode[StatusResponse](t, rr)
		assert.Equal(t, "idle", resp.State)
		assert.Zero(t, resp.Version)
		assert.Empty(t, resp.Dates)
		assert.Nil(t, resp.LastReport)
	})

	t.Run("Group unknown before snapshot", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/api/v1/groups/53")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Cycle not found", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/api/v1/cycles/non-existent")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Refresh commits snapshot", func(t *testing.T) {
		rr := do(srv, http.MethodPost, "/api/v1/refresh")
		require.Equal(t, http.StatusAccepted, rr.Code)
		cycleID := decode[RefreshResponse](t, rr).CycleID
		require.NotEmpty(t, cycleID)

		var rec CycleRecord
		require.Eventually(t, func() bool {
			rr := do(srv, http.MethodGet, "/api/v1/cycles/"+cycleID)
			if rr.Code != http.StatusOK {
				return false
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
				return false
			}
			return rec.Status != CycleStatusRunning
		}, 2*time.Second, 10*time.Millisecond)

		assert.Equal(t, CycleStatusCompleted, rec.Status)
		require.NotNil(t, rec.Report)
		assert.Equal(t, services.OutcomeCommitted, rec.Report.Outcome)
		assert.True(t, rec.Report.FullReplace)

		status := decode[StatusResponse](t, do(srv, http.MethodGet, "/api/v1/status"))
		assert.Equal(t, uint64(1), status.Version)
		assert.Equal(t, []string{"01.09"}, status.Dates)
		assert.NotEmpty(t, status.Fingerprints["day"])
		require.NotNil(t, status.LastReport)
		assert.Equal(t, cycleID, status.LastReport.ID)
	})

	t.Run("Group after refresh", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/api/v1/groups/53")
		require.Equal(t, http.StatusOK, rr.Code)
		resp := decode[GroupResponse](t, rr)
		assert.Equal(t, "53", resp.Group.GroupID)
		require.Len(t, resp.Group.Lessons, 1)
		assert.Equal(t, "Математика", resp.Group.Lessons[0].Subject)

		empty := decode[GroupResponse](t, do(srv, http.MethodGet, "/api/v1/groups/54"))
		assert.Empty(t, empty.Group.Lessons)

		assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/api/v1/groups/99").Code)
	})

	t.Run("Timetable", func(t *testing.T) {
		rr := do(srv, http.MethodGet, "/api/v1/timetable")
		require.Equal(t, http.StatusOK, rr.Code)
		snap := decode[domain.TimetableSnapshot](t, rr)
		require.Len(t, snap.Days, 1)
		assert.Equal(t, []string{"53", "54"}, snap.Days[0].GroupIDs())
	})
}

func TestServer_RefreshBusy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	snaps := snapshot.NewStore(snapshot.WithLogger(logger))
	srv, err := New(testConfig(), busyRefresher{}, snaps, NewCycleStore(time.Minute), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rr := do(srv, http.MethodPost, "/api/v1/refresh")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rr)["error"])

	status := decode[StatusResponse](t, do(srv, http.MethodGet, "/api/v1/status"))
	assert.Equal(t, "notifying", status.State)
}
