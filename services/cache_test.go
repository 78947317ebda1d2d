package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKeyTrimsButPreservesCase(t *testing.T) {
	assert.Equal(t, "Berapa jumlah penduduk?", cacheKey("  Berapa jumlah penduduk?\n"))

	// Exact-match contract: different casing is a different key.
	assert.NotEqual(t, cacheKey("berapa jumlah penduduk?"), cacheKey("Berapa jumlah penduduk?"))
}
