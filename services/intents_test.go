package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIntentsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intents.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIntentMatch(t *testing.T) {
	path := writeIntentsFile(t, `[
		{"keywords": ["halo", "hai", "selamat pagi"], "response": "Halo! Ada yang bisa saya bantu?"},
		{"keywords": ["terima kasih", "makasih"], "response": "Sama-sama!"}
	]`)

	svc := NewIntentService()
	require.NoError(t, svc.Load(path))

	response, ok := svc.Match("Halo, apa kabar?")
	require.True(t, ok)
	assert.Equal(t, "Halo! Ada yang bisa saya bantu?", response)

	response, ok = svc.Match("oke makasih banyak ya")
	require.True(t, ok)
	assert.Equal(t, "Sama-sama!", response)
}

func TestIntentMatchIsCaseInsensitive(t *testing.T) {
	path := writeIntentsFile(t, `[{"keywords": ["Selamat Pagi"], "response": "Pagi!"}]`)

	svc := NewIntentService()
	require.NoError(t, svc.Load(path))

	_, ok := svc.Match("SELAMAT PAGI pak")
	assert.True(t, ok)
}

func TestIntentNoMatch(t *testing.T) {
	path := writeIntentsFile(t, `[{"keywords": ["halo"], "response": "Halo!"}]`)

	svc := NewIntentService()
	require.NoError(t, svc.Load(path))

	_, ok := svc.Match("berapa jumlah penduduk desa?")
	assert.False(t, ok)
}

func TestIntentMissingFileDisablesMatching(t *testing.T) {
	svc := NewIntentService()
	require.NoError(t, svc.Load(filepath.Join(t.TempDir(), "missing.json")))

	_, ok := svc.Match("halo")
	assert.False(t, ok)
}

func TestIntentMalformedFileIsError(t *testing.T) {
	path := writeIntentsFile(t, `{not json`)

	svc := NewIntentService()
	assert.Error(t, svc.Load(path))
}
