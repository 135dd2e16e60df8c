package hasher

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashReader_KnownDigest(t *testing.T) {
	sum, err := HashReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sum)

	sum, err = HashReader(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

func TestHashFile_IndependentOfNameAndPath(t *testing.T) {
	dir := t.TempDir()
	content := []byte("same bytes, different places")

	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "nested", "renamed.md")
	require.NoError(t, os.WriteFile(a, content, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(b), 0o755))
	require.NoError(t, os.WriteFile(b, content, 0o644))

	ha, err := HashFile(a)
	require.NoError(t, err)
	hb, err := HashFile(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestHashFile_OrderSensitive(t *testing.T) {
	h1, err := HashReader(strings.NewReader("ab"))
	require.NoError(t, err)
	h2, err := HashReader(strings.NewReader("ba"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHashFile_LargerThanBuffer(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 3*bufferSize+17)
	path := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fromFile, err := HashFile(path)
	require.NoError(t, err)
	fromReader, err := HashReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, fromReader, fromFile)
}

func TestHashFile_Missing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
