package services_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"students-timetable/internal/adapters/parser"
	"students-timetable/internal/adapters/source"
	"students-timetable/internal/core/services"
	"students-timetable/internal/domain"
	"students-timetable/internal/render"
	"students-timetable/internal/snapshot"
	"students-timetable/internal/subscribers"
)

const (
	dayV1 = `{"date":"01.09","groups":[
		{"label":"53 - ПОИТ","rows":[{"slot":"1","subject":"Математика","cabinet":"204"}]},
		{"label":"54 - ПОИТ","rows":[{"slot":"1","subject":"Физика","cabinet":"101"}]}
	]}`
	dayV2 = `{"date":"01.09","groups":[
		{"label":"53 - ПОИТ","rows":[{"slot":"1","subject":"Математика","cabinet":"205"}]},
		{"label":"54 - ПОИТ","rows":[{"slot":"1","subject":"Физика","cabinet":"101"}]}
	]}`
	weekV1 = `{"interval":"01.09 - 06.09","groups":[]}`
	weekV2 = `{"interval":"08.09 - 13.09","groups":[]}`
)

type inbox struct {
	mu   sync.Mutex
	sent map[int64][]string
}

func (i *inbox) Send(_ context.Context, userID int64, text string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sent[userID] = append(i.sent[userID], text)
	return nil
}

func (i *inbox) take() map[int64][]string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.sent
	i.sent = make(map[int64][]string)
	return out
}

type pipeline struct {
	source *source.MemorySource
	store  *snapshot.Store
	inbox  *inbox
	coord  *services.Coordinator
}

func newPipeline(t *testing.T, dir *subscribers.BadgerDirectory, src *source.MemorySource, statePath string) *pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := snapshot.NewStore(snapshot.WithStateFile(statePath), snapshot.WithLogger(logger))
	require.NoError(t, store.Load())

	renderer := render.NewMarkdownRenderer()
	box := &inbox{sent: make(map[int64][]string)}
	dispatcher := services.NewDispatcher(dir, box, renderer, services.WithDispatcherLogger(logger))
	coord := services.NewCoordinator(
		source.NewExtractor(src, parser.NewJSONParser()),
		services.NewNormalizer(services.WithNormalizerLogger(logger)),
		store, dispatcher, renderer,
		services.WithWeekSource(true),
		services.WithCoordinatorLogger(logger),
	)
	return &pipeline{source: src, store: store, inbox: box, coord: coord}
}

func TestPipeline_EndToEnd(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir, err := subscribers.Open("", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })

	for _, sub := range []domain.Subscriber{
		{UserID: 1, Groups: []string{"53"}, NotificationsEnabled: true},
		{UserID: 2, Groups: []string{"54"}, NotificationsEnabled: true},
		{UserID: 3, Groups: []string{"53"}, NotificationsEnabled: false},
	} {
		require.NoError(t, dir.Upsert(ctx, sub))
	}

	statePath := filepath.Join(t.TempDir(), "state.json")
	src := source.NewMemorySource([]byte(dayV1))
	src.Set(domain.SourceWeek, []byte(weekV1))
	p := newPipeline(t, dir, src, statePath)

	// первый запуск: полная замена, неделя запоминается молча
	report, err := p.coord.TriggerRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeCommitted, report.Outcome)
	assert.True(t, report.FullReplace)
	assert.False(t, report.WeekChanged)
	assert.Equal(t, "01.09 - 06.09", p.store.WeekInterval())

	sent := p.inbox.take()
	require.Len(t, sent[1], 1)
	assert.Contains(t, sent[1][0], "Математика")
	require.Len(t, sent[2], 1)
	assert.Contains(t, sent[2][0], "Физика")
	assert.Empty(t, sent[3])

	// смена кабинета у 53
	src.Set(domain.SourceDay, []byte(dayV2))
	report, err = p.coord.TriggerRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeCommitted, report.Outcome)
	assert.Equal(t, []string{"53"}, report.ChangedGroups)

	sent = p.inbox.take()
	require.Len(t, sent[1], 1)
	assert.Contains(t, sent[1][0], "205")
	assert.Empty(t, sent[2])

	// тот же контент
	report, err = p.coord.TriggerRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeUnchanged, report.Outcome)
	assert.Empty(t, p.inbox.take())

	// новая неделя рассылается всем включенным
	src.Set(domain.SourceWeek, []byte(weekV2))
	report, err = p.coord.TriggerRefresh(ctx)
	require.NoError(t, err)
	assert.True(t, report.WeekChanged)

	sent = p.inbox.take()
	require.Len(t, sent[1], 1)
	assert.Contains(t, sent[1][0], "08.09")
	require.Len(t, sent[2], 1)
	assert.Empty(t, sent[3])

	version := p.store.Version()

	// перезапуск поднимает состояние из файла и не шлет повторных уведомлений
	restarted := newPipeline(t, dir, src, statePath)
	assert.Equal(t, version, restarted.store.Version())
	assert.Equal(t, "08.09 - 13.09", restarted.store.WeekInterval())

	report, err = restarted.coord.TriggerRefresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, services.OutcomeUnchanged, report.Outcome)
	assert.Equal(t, version, restarted.store.Version())
	assert.Empty(t, restarted.inbox.take())

	group, ok := restarted.store.Group("53")
	require.True(t, ok)
	require.Len(t, group.Lessons, 1)
	assert.Equal(t, "205", group.Lessons[0].Cabinet)
}
