package parser

import (
	"bytes"
	"errors"

	"github.com/goccy/go-json"
	"golang.org/x/xerrors"

	"students-timetable/internal/domain"
)

// ErrEmptyPayload - источник вернул пустое тело.
var ErrEmptyPayload = errors.New("empty payload")

// JSONParser реализует интерфейс Parser для разбора JSON страницы расписания.
type JSONParser struct{}

// NewJSONParser создает новый экземпляр JSONParser.
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// Parse преобразует срез байт с JSON в RawBatch.
// Source и Fingerprint заполняет вызывающая сторона.
func (p *JSONParser) Parse(data []byte) (*domain.RawBatch, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyPayload
	}

	var batch domain.RawBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, xerrors.Errorf("failed to unmarshal json: %w", err)
	}
	return &batch, nil
}
