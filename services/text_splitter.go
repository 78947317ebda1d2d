package services

// TextSplitter cuts document text into overlapping chunks for embedding.
//
// Every chunk is an exact substring of the input and the next chunk starts
// overlap runes before the previous one ended, so adjacent chunks share
// exactly that many runes and the original text can be reconstructed from
// the sequence. Within a window the cut prefers a natural boundary:
// paragraph break, then line break, then sentence end, then word gap.
type TextSplitter struct {
	chunkSize int
	overlap   int
}

var boundarySeparators = []string{"\n\n", "\n", ". ", " "}

// NewTextSplitter creates a splitter. overlap must be smaller than
// chunkSize, which config validation guarantees.
func NewTextSplitter(chunkSize, overlap int) *TextSplitter {
	return &TextSplitter{chunkSize: chunkSize, overlap: overlap}
}

// Split chunks text. Empty input yields no chunks; input that fits one
// window yields a single chunk.
func (ts *TextSplitter) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= ts.chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + ts.chunkSize
		if end >= n {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}

		cut := ts.cutPoint(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - ts.overlap
	}
}

// cutPoint picks where to end the chunk starting at start. The cut stays
// in the second half of the window and past start+overlap so every chunk
// makes forward progress.
func (ts *TextSplitter) cutPoint(runes []rune, start, end int) int {
	minCut := start + ts.chunkSize/2
	if floor := start + ts.overlap + 1; floor > minCut {
		minCut = floor
	}

	for _, sep := range boundarySeparators {
		if cut, ok := lastBoundary(runes, minCut, end, sep); ok {
			return cut
		}
	}
	return end
}

// lastBoundary finds the latest occurrence of sep whose end falls in
// (minCut, end]. The separator stays with the left chunk.
func lastBoundary(runes []rune, minCut, end int, sep string) (int, bool) {
	sepRunes := []rune(sep)
	for i := end - len(sepRunes); i >= 0; i-- {
		cut := i + len(sepRunes)
		if cut < minCut {
			return 0, false
		}
		match := true
		for j, r := range sepRunes {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return cut, true
		}
	}
	return 0, false
}
