package source

import (
	"context"
	"crypto/sha256"
	"fmt"

	"golang.org/x/xerrors"

	"students-timetable/internal/domain"
	"students-timetable/internal/ports"
)

// Extractor склеивает DataSource и Parser в ExtractionAdapter.
type Extractor struct {
	source ports.DataSource
	parser ports.Parser
}

// NewExtractor создает новый экземпляр Extractor.
func NewExtractor(source ports.DataSource, parser ports.Parser) *Extractor {
	return &Extractor{source: source, parser: parser}
}

// FetchRaw загружает и разбирает страницу источника.
// Отпечаток считается по сырым байтам, до разбора.
func (e *Extractor) FetchRaw(ctx context.Context, source domain.Source) (*domain.RawBatch, error) {
	data, err := e.source.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	batch, err := e.parser.Parse(data)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse %s payload: %w", source, err)
	}
	batch.Source = source
	batch.Fingerprint = Fingerprint(data)
	return batch, nil
}

// Fingerprint возвращает hex SHA-256 содержимого.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
