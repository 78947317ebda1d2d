package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyText(t *testing.T) {
	ts := NewTextSplitter(100, 20)
	assert.Nil(t, ts.Split(""))
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	ts := NewTextSplitter(100, 20)
	chunks := ts.Split("desa maju bersama")
	require.Len(t, chunks, 1)
	assert.Equal(t, "desa maju bersama", chunks[0])
}

func TestSplitChunksAreExactSubstrings(t *testing.T) {
	ts := NewTextSplitter(50, 10)
	text := strings.Repeat("kantor desa buka setiap hari senin sampai jumat. ", 20)

	chunks := ts.Split(text)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Contains(t, text, chunk, "chunk %d", i)
		assert.LessOrEqual(t, len([]rune(chunk)), 50, "chunk %d", i)
	}
}

func TestSplitAdjacentChunksShareOverlap(t *testing.T) {
	overlap := 10
	ts := NewTextSplitter(50, overlap)
	text := strings.Repeat("pelayanan administrasi kependudukan desa. ", 25)

	chunks := ts.Split(text)
	require.Greater(t, len(chunks), 1)

	for i := 0; i < len(chunks)-1; i++ {
		left := []rune(chunks[i])
		right := []rune(chunks[i+1])
		tail := string(left[len(left)-overlap:])
		head := string(right[:overlap])
		assert.Equal(t, tail, head, "chunks %d and %d", i, i+1)
	}
}

func TestSplitReconstructsOriginalText(t *testing.T) {
	overlap := 15
	ts := NewTextSplitter(80, overlap)
	text := strings.Repeat("jumlah penduduk desa tercatat pada sensus terakhir adalah lima ribu jiwa. ", 15)

	chunks := ts.Split(text)
	require.Greater(t, len(chunks), 1)

	var b strings.Builder
	b.WriteString(chunks[0])
	for _, chunk := range chunks[1:] {
		b.WriteString(string([]rune(chunk)[overlap:]))
	}
	assert.Equal(t, text, b.String())
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	ts := NewTextSplitter(60, 5)
	// A paragraph break sits inside the first window's second half.
	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 60)

	chunks := ts.Split(text)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0], "\n\n"), "first chunk should end at the paragraph break, got %q", chunks[0])
}

func TestSplitPrefersSentenceOverWordBoundary(t *testing.T) {
	ts := NewTextSplitter(60, 5)
	text := "balai desa terletak di pusat. dusun krajan memiliki dua rukun tetangga dan satu pos kamling"

	chunks := ts.Split(text)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0], ". "), "first chunk should end at the sentence, got %q", chunks[0])
}

func TestSplitHandlesTextWithoutBoundaries(t *testing.T) {
	ts := NewTextSplitter(30, 5)
	text := strings.Repeat("x", 100)

	chunks := ts.Split(text)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 30, "chunk %d", i)
	}
}

func TestSplitUnicodeSafe(t *testing.T) {
	ts := NewTextSplitter(20, 4)
	text := strings.Repeat("desa «maju» – étape ", 10)

	chunks := ts.Split(text)
	for i, chunk := range chunks {
		assert.True(t, strings.Contains(text, chunk), "chunk %d is not a substring", i)
	}
}
