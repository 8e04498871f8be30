package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	t.Run("absent key returns nil without error", func(t *testing.T) {
		m := NewMemory()
		value, err := m.Get("missing")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("round trip", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Set(KeyMapFavorites, []byte(`[{"id":"p1"}]`)))

		value, err := m.Get(KeyMapFavorites)
		require.NoError(t, err)
		assert.Equal(t, `[{"id":"p1"}]`, string(value))
	})

	t.Run("stored value is isolated from caller mutation", func(t *testing.T) {
		m := NewMemory()
		buf := []byte(`original`)
		require.NoError(t, m.Set("k", buf))
		buf[0] = 'X'

		value, err := m.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "original", string(value))
	})
}

func TestFile(t *testing.T) {
	t.Run("absent key returns nil without error", func(t *testing.T) {
		f, err := NewFile(t.TempDir())
		require.NoError(t, err)

		value, err := f.Get("missing")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("round trip", func(t *testing.T) {
		f, err := NewFile(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, f.Set(KeyPlaceNotifications, []byte(`{"p1":true}`)))
		value, err := f.Get(KeyPlaceNotifications)
		require.NoError(t, err)
		assert.Equal(t, `{"p1":true}`, string(value))
	})

	t.Run("rejects keys unsafe as file names", func(t *testing.T) {
		f, err := NewFile(t.TempDir())
		require.NoError(t, err)

		_, err = f.Get("../escape")
		assert.Error(t, err)
		assert.Error(t, f.Set("a/b", nil))
	})
}
