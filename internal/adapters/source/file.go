package source

import (
	"context"
	"os"

	"golang.org/x/xerrors"

	"students-timetable/internal/domain"
)

// FileSource реализует интерфейс DataSource для чтения данных из файлов,
// по одному файлу на источник.
type FileSource struct {
	paths map[domain.Source]string
}

// NewFileSource создает новый экземпляр FileSource. Пустой путь означает,
// что источник не настроен.
func NewFileSource(dayPath, weekPath string) *FileSource {
	return &FileSource{paths: map[domain.Source]string{
		domain.SourceDay:  dayPath,
		domain.SourceWeek: weekPath,
	}}
}

// Fetch читает файл источника и возвращает его содержимое.
func (s *FileSource) Fetch(ctx context.Context, source domain.Source) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.paths[source]
	if path == "" {
		return nil, xerrors.Errorf("не указан путь к файлу для источника %s: %w", source, ErrSourceNotConfigured)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read file %s: %w", path, err)
	}

	return data, nil
}
