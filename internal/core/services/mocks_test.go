package services

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/stretchr/testify/mock"

	"students-timetable/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockSource - мок ExtractionAdapter.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) FetchRaw(ctx context.Context, source domain.Source) (*domain.RawBatch, error) {
	args := m.Called(ctx, source)
	if res := args.Get(0); res != nil {
		return res.(*domain.RawBatch), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockDirectory - мок SubscriberDirectory.
type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ListSubscribers(ctx context.Context, filter domain.SubscriberFilter) ([]domain.Subscriber, error) {
	args := m.Called(ctx, filter)
	if res := args.Get(0); res != nil {
		return res.([]domain.Subscriber), args.Error(1)
	}
	return nil, args.Error(1)
}

// staticDirectory применяет фильтр к фиксированному списку.
type staticDirectory struct {
	subscribers []domain.Subscriber
}

func (d *staticDirectory) ListSubscribers(_ context.Context, filter domain.SubscriberFilter) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	for _, s := range d.subscribers {
		if filter.Match(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// recordingTransport запоминает отправленные сообщения и может отказывать отдельным пользователям.
type recordingTransport struct {
	mu       sync.Mutex
	sent     map[int64][]string
	failFor  map[int64]error
	panicFor map[int64]bool
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{
		sent:     make(map[int64][]string),
		failFor:  make(map[int64]error),
		panicFor: make(map[int64]bool),
	}
}

func (t *recordingTransport) Send(_ context.Context, userID int64, text string) error {
	if t.panicFor[userID] {
		panic("transport exploded")
	}
	if err := t.failFor[userID]; err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent[userID] = append(t.sent[userID], text)
	return nil
}

func (t *recordingTransport) messages(userID int64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent[userID]...)
}

func (t *recordingTransport) users() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// recordingAdmin запоминает служебные сообщения.
type recordingAdmin struct {
	mu    sync.Mutex
	texts []string
}

func (a *recordingAdmin) Notify(_ context.Context, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
}

func (a *recordingAdmin) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.texts...)
}

// plainRenderer формирует предсказуемый текст для проверок.
type plainRenderer struct{}

func (plainRenderer) RenderGroupDay(date string, group domain.GroupSchedule) string {
	if len(group.Lessons) == 0 {
		return date + "|" + group.GroupID + "|empty"
	}
	text := date + "|" + group.GroupID
	for _, l := range group.Lessons {
		text += "|" + l.Subject + "@" + l.Cabinet
	}
	return text
}

func (plainRenderer) RenderWeekAnnouncement(interval string) string {
	return "week " + interval
}

type blockedSet map[int64]bool

func (b blockedSet) IsBlocked(userID int64) bool {
	return b[userID]
}
