package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"students-timetable/internal/domain"
)

func TestMemorySource(t *testing.T) {
	ctx := context.Background()

	t.Run("Fetch возвращает установленные данные", func(t *testing.T) {
		expectedData := []byte("test data")
		source := NewMemorySource(expectedData)

		actualData, err := source.Fetch(ctx, domain.SourceDay)

		assert.NoError(t, err)
		assert.Equal(t, expectedData, actualData)
	})

	t.Run("Fetch возвращает ошибку для неустановленного источника", func(t *testing.T) {
		source := NewMemorySource(nil)

		actualData, err := source.Fetch(ctx, domain.SourceWeek)

		assert.Error(t, err)
		assert.Nil(t, actualData)
		assert.Contains(t, err.Error(), "data not set")
	})

	t.Run("Fetch возвращает копию данных", func(t *testing.T) {
		originalData := []byte("test data")
		source := NewMemorySource(originalData)

		fetchedData, err := source.Fetch(ctx, domain.SourceDay)
		assert.NoError(t, err)

		// Изменяем полученные данные
		fetchedData[0] = 'X'

		again, err := source.Fetch(ctx, domain.SourceDay)
		assert.NoError(t, err)
		assert.Equal(t, []byte("test data"), again)
	})

	t.Run("Set подменяет данные", func(t *testing.T) {
		source := NewMemorySource([]byte("old"))
		source.Set(domain.SourceDay, []byte("new"))
		source.Set(domain.SourceWeek, []byte("week"))

		day, _ := source.Fetch(ctx, domain.SourceDay)
		week, _ := source.Fetch(ctx, domain.SourceWeek)
		assert.Equal(t, "new", string(day))
		assert.Equal(t, "week", string(week))
	})
}
