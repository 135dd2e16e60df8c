package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("remote", func(t *testing.T) {
		emb, err := New(Config{Provider: "REMOTE", BaseURL: "http://localhost:5001/v1", Model: "m", CacheSize: 5})
		require.NoError(t, err)
		defer emb.Close()

		assert.Equal(t, ProviderRemote, emb.Provider())
		assert.Equal(t, "m", emb.Model())
	})

	t.Run("remote without host", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderRemote})
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Nil(t, emb)
	})

	t.Run("unknown provider", func(t *testing.T) {
		emb, err := New(Config{Provider: "jina"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
		assert.Nil(t, emb)
	})

	t.Run("unknown local model", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderLocal, Model: "not-a-model"})
		assert.Error(t, err)
		assert.Nil(t, emb)
	})
}
