package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	a := ComputeHash("model-a", "hello")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ComputeHash("model-a", "hello"))
	assert.NotEqual(t, a, ComputeHash("model-b", "hello"), "model is part of the key")
	assert.NotEqual(t, a, ComputeHash("model-a", "hello!"))
	assert.NotEqual(t, ComputeHash("ab", "c"), ComputeHash("a", "bc"))
}

func TestValidateRequest(t *testing.T) {
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "x"}))
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		wantErr bool
	}{
		{"empty batch", nil, true},
		{"empty element", []string{"a", ""}, true},
		{"valid", []string{"a", "b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(BatchEmbeddingRequest{Texts: tt.texts})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("get returns a copy", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("k", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3})

		got, ok := cache.Get("k")
		require.True(t, ok)
		got.Vector[0] = 99

		again, ok := cache.Get("k")
		require.True(t, ok)
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("set stores a copy", func(t *testing.T) {
		cache := NewCache(10)
		emb := &Embedding{Vector: []float32{1, 2, 3}}
		cache.Set("k", emb)
		emb.Vector[0] = 42

		got, ok := cache.Get("k")
		require.True(t, ok)
		assert.Equal(t, []float32{1, 2, 3}, got.Vector)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", &Embedding{Vector: []float32{1}})
		cache.Set("b", &Embedding{Vector: []float32{2}})
		_, _ = cache.Get("a")
		cache.Set("c", &Embedding{Vector: []float32{3}})

		_, ok := cache.Get("b")
		assert.False(t, ok)
		_, ok = cache.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 2, cache.Size())
	})

	t.Run("nil cache is a no-op", func(t *testing.T) {
		var cache *Cache
		cache.Set("k", &Embedding{})
		_, ok := cache.Get("k")
		assert.False(t, ok)
		assert.Zero(t, cache.Size())
		cache.Clear()
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(0)
		cache.Set("k", &Embedding{})
		cache.Clear()
		assert.Zero(t, cache.Size())
	})
}
