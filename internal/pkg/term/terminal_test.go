package term

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWidthOf(t *testing.T) {
	t.Run("обычный файл не терминал", func(t *testing.T) {
		f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
		require.NoError(t, err)
		defer f.Close()

		assert.Equal(t, 120, WidthOf(f, 120))
	})

	t.Run("nil", func(t *testing.T) {
		assert.Equal(t, DefaultWidth, WidthOf(nil, DefaultWidth))
	})
}
