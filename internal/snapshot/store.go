// Package snapshot хранит текущий снимок расписания и отпечатки источников.
package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"

	"students-timetable/internal/domain"
	"students-timetable/internal/metrics"
)

// State - содержимое хранилища. После Commit значение не изменяется.
type State struct {
	Snapshot     domain.TimetableSnapshot `json:"snapshot"`
	Fingerprints map[domain.Source]string `json:"fingerprints"`
	WeekInterval string                   `json:"week_interval"`
	Version      uint64                   `json:"version"`
}

// clone возвращает копию с собственными картой отпечатков и срезом дней.
func (s State) clone() State {
	out := s
	out.Fingerprints = make(map[domain.Source]string, len(s.Fingerprints))
	for k, v := range s.Fingerprints {
		out.Fingerprints[k] = v
	}
	out.Snapshot.Days = append([]domain.DaySnapshot(nil), s.Snapshot.Days...)
	return out
}

// Option - функциональная опция для Store.
type Option func(*Store)

// WithStateFile включает сохранение состояния в файл.
func WithStateFile(path string) Option {
	return func(s *Store) {
		s.path = path
	}
}

// WithLogger устанавливает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store владеет снимком. Писатель один (координатор), читателей много.
// Commit - атомарная замена указателя, читатели видят либо старое, либо новое состояние целиком.
type Store struct {
	current atomic.Pointer[State]
	writeMu sync.Mutex
	path    string
	log     *slog.Logger
}

// NewStore создает пустое хранилище.
func NewStore(opts ...Option) *Store {
	s := &Store{log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&State{Fingerprints: map[domain.Source]string{}})
	return s
}

// Load читает состояние из файла, если он есть. Отсутствующий или битый файл
// оставляет хранилище пустым, и следующий цикл выполнит полную замену.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info("state file not found, starting with empty snapshot", slog.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file %s: %w", s.path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warn("state file is corrupted, starting with empty snapshot", slog.String("path", s.path), "error", err)
		return nil
	}
	if st.Fingerprints == nil {
		st.Fingerprints = map[domain.Source]string{}
	}

	s.current.Store(&st)
	metrics.GetMetrics().SnapshotVersion.Set(float64(st.Version))
	s.log.Info("state loaded", slog.String("path", s.path), slog.Int("days", len(st.Snapshot.Days)), slog.Uint64("version", st.Version))
	return nil
}

// Read возвращает текущий снимок. Вызывающий не должен его изменять.
func (s *Store) Read() domain.TimetableSnapshot {
	return s.current.Load().Snapshot
}

// State возвращает копию состояния, которую можно менять и передать в Commit.
func (s *Store) State() State {
	return s.current.Load().clone()
}

// Version возвращает номер последнего коммита.
func (s *Store) Version() uint64 {
	return s.current.Load().Version
}

// Fingerprint возвращает последний отпечаток источника.
func (s *Store) Fingerprint(source domain.Source) string {
	return s.current.Load().Fingerprints[source]
}

// WeekInterval возвращает последний известный интервал недельного расписания.
func (s *Store) WeekInterval() string {
	return s.current.Load().WeekInterval
}

// Group возвращает расписание группы из самого свежего дня.
func (s *Store) Group(groupID string) (domain.GroupSchedule, bool) {
	latest, ok := s.Read().Latest()
	if !ok {
		return domain.GroupSchedule{}, false
	}
	g, ok := latest.Groups[groupID]
	return g, ok
}

// Commit атомарно заменяет состояние и увеличивает версию. Ошибка записи файла
// логируется и не отменяет коммит в памяти. Возвращает новую версию.
func (s *Store) Commit(next State) uint64 {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	committed := next.clone()
	committed.Version = s.current.Load().Version + 1
	s.current.Store(&committed)
	metrics.GetMetrics().SnapshotVersion.Set(float64(committed.Version))

	if err := s.persist(&committed); err != nil {
		metrics.GetMetrics().PersistErrorsTotal.Inc()
		s.log.Error("failed to persist state", slog.String("path", s.path), "error", err)
	}
	return committed.Version
}

func (s *Store) persist(st *State) error {
	if s.path == "" {
		return nil
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
