package snapshot

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"students-timetable/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSnapshot(cabinet string) domain.TimetableSnapshot {
	return domain.TimetableSnapshot{Days: []domain.DaySnapshot{{
		Date: "01.09",
		Groups: map[string]domain.GroupSchedule{
			"53": {GroupID: "53", Date: "01.09", Lessons: []domain.Lesson{{Slot: 1, Subject: "Math", Cabinet: cabinet, GroupID: "53"}}},
		},
	}}}
}

func TestStore_CommitAndRead(t *testing.T) {
	s := NewStore(WithLogger(quietLogger()))

	assert.True(t, s.Read().IsEmpty())
	assert.Equal(t, uint64(0), s.Version())
	assert.Empty(t, s.Fingerprint(domain.SourceDay))

	next := s.State()
	next.Snapshot = sampleSnapshot("204")
	next.Fingerprints[domain.SourceDay] = "abc"
	version := s.Commit(next)

	assert.Equal(t, uint64(1), version)
	assert.Equal(t, "abc", s.Fingerprint(domain.SourceDay))
	g, ok := s.Group("53")
	require.True(t, ok)
	assert.Equal(t, "204", g.Lessons[0].Cabinet)

	_, ok = s.Group("54")
	assert.False(t, ok)
}

func TestStore_StateIsACopy(t *testing.T) {
	s := NewStore(WithLogger(quietLogger()))
	next := s.State()
	next.Fingerprints[domain.SourceDay] = "abc"
	s.Commit(next)

	st := s.State()
	st.Fingerprints[domain.SourceDay] = "changed"
	assert.Equal(t, "abc", s.Fingerprint(domain.SourceDay), "изменение копии не должно влиять на хранилище")
}

func TestStore_ReadersSeeWholeSnapshots(t *testing.T) {
	s := NewStore(WithLogger(quietLogger()))
	first := s.State()
	first.Snapshot = sampleSnapshot("204")
	s.Commit(first)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := s.Read()
				if assert.Len(t, snap.Days, 1) {
					assert.Contains(t, snap.Days[0].Groups, "53")
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		next := s.State()
		if i%2 == 0 {
			next.Snapshot = sampleSnapshot("205")
		} else {
			next.Snapshot = sampleSnapshot("204")
		}
		s.Commit(next)
	}
	wg.Wait()
	assert.Equal(t, uint64(51), s.Version())
}

func TestStore_PersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "last.json")

	s := NewStore(WithStateFile(path), WithLogger(quietLogger()))
	require.NoError(t, s.Load())

	next := s.State()
	next.Snapshot = sampleSnapshot("204")
	next.Fingerprints[domain.SourceDay] = "day-fp"
	next.Fingerprints[domain.SourceWeek] = "week-fp"
	next.WeekInterval = "01.09 - 06.09"
	s.Commit(next)

	_, err := os.Stat(path)
	require.NoError(t, err)

	restored := NewStore(WithStateFile(path), WithLogger(quietLogger()))
	require.NoError(t, restored.Load())

	assert.Equal(t, uint64(1), restored.Version())
	assert.Equal(t, "day-fp", restored.Fingerprint(domain.SourceDay))
	assert.Equal(t, "week-fp", restored.Fingerprint(domain.SourceWeek))
	assert.Equal(t, "01.09 - 06.09", restored.WeekInterval())
	g, ok := restored.Group("53")
	require.True(t, ok)
	assert.Equal(t, "Math", g.Lessons[0].Subject)
}

func TestStore_LoadCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewStore(WithStateFile(path), WithLogger(quietLogger()))
	require.NoError(t, s.Load())
	assert.True(t, s.Read().IsEmpty())
}

func TestStore_PersistFailureKeepsCommit(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// родительский "каталог" является файлом, запись обязана упасть
	s := NewStore(WithStateFile(filepath.Join(blocker, "last.json")), WithLogger(quietLogger()))
	next := s.State()
	next.Snapshot = sampleSnapshot("204")
	s.Commit(next)

	_, ok := s.Group("53")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), s.Version())
}
