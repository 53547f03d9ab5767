package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"students-timetable/internal/adapters/parser"
	"students-timetable/internal/domain"
)

func TestExtractor_FetchRaw(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"date":"01.09","groups":[{"label":"53 - ПОИТ","rows":[{"slot":"№1","subject":"Math","cabinet":"204"}]}]}`)

	t.Run("разбор и отпечаток", func(t *testing.T) {
		e := NewExtractor(NewMemorySource(payload), parser.NewJSONParser())

		batch, err := e.FetchRaw(ctx, domain.SourceDay)
		require.NoError(t, err)
		assert.Equal(t, domain.SourceDay, batch.Source)
		assert.Equal(t, "01.09", batch.Date)
		require.Len(t, batch.Fragments, 1)
		assert.Equal(t, "53 - ПОИТ", batch.Fragments[0].GroupLabel)
		assert.Equal(t, Fingerprint(payload), batch.Fingerprint)
		assert.Len(t, batch.Fingerprint, 64)
	})

	t.Run("одинаковые байты дают одинаковый отпечаток", func(t *testing.T) {
		e := NewExtractor(NewMemorySource(payload), parser.NewJSONParser())
		a, err := e.FetchRaw(ctx, domain.SourceDay)
		require.NoError(t, err)
		b, err := e.FetchRaw(ctx, domain.SourceDay)
		require.NoError(t, err)
		assert.Equal(t, a.Fingerprint, b.Fingerprint)
	})

	t.Run("пустые данные", func(t *testing.T) {
		e := NewExtractor(NewMemorySource([]byte{}), parser.NewJSONParser())
		_, err := e.FetchRaw(ctx, domain.SourceDay)
		assert.True(t, errors.Is(err, parser.ErrEmptyPayload))
	})

	t.Run("ошибка источника", func(t *testing.T) {
		e := NewExtractor(NewMemorySource(nil), parser.NewJSONParser())
		_, err := e.FetchRaw(ctx, domain.SourceDay)
		assert.Error(t, err)
	})
}
