package vectorstore

import "sync"

// Holder hands out the current Index snapshot to request handlers and lets
// the reload watcher swap in a new one atomically.
type Holder struct {
	mu  sync.RWMutex
	idx *Index
	dir string
}

func NewHolder(dir string) *Holder {
	return &Holder{idx: &Index{}, dir: dir}
}

// Get returns the current snapshot. Never nil.
func (h *Holder) Get() *Index {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idx
}

// Set swaps in a new snapshot.
func (h *Holder) Set(idx *Index) {
	if idx == nil {
		idx = &Index{}
	}
	h.mu.Lock()
	h.idx = idx
	h.mu.Unlock()
}

// Reload loads the index file from disk and swaps it in. On error the
// previous snapshot stays in place.
func (h *Holder) Reload() error {
	idx, err := Load(h.dir)
	if err != nil {
		return err
	}
	h.Set(idx)
	return nil
}
