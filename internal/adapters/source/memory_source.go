package source

import (
	"context"
	"fmt"
	"sync"

	"students-timetable/internal/domain"
)

// MemorySource реализует интерфейс DataSource для чтения данных из памяти.
// Используется в тестах и для пробного запуска.
type MemorySource struct {
	mu   sync.RWMutex
	data map[domain.Source][]byte
}

// NewMemorySource создает новый экземпляр MemorySource с данными дневного источника.
func NewMemorySource(day []byte) *MemorySource {
	s := &MemorySource{data: make(map[domain.Source][]byte)}
	if day != nil {
		s.Set(domain.SourceDay, day)
	}
	return s
}

// Set подменяет данные источника.
func (s *MemorySource) Set(source domain.Source, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[source] = append([]byte(nil), data...)
}

// Fetch возвращает копию данных из памяти.
func (s *MemorySource) Fetch(_ context.Context, source domain.Source) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[source]
	if !ok {
		return nil, fmt.Errorf("data not set for source %s", source)
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	return dataCopy, nil
}
