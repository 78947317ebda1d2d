package models

// Intent is a deterministic keyword-triggered canned response. Intents are
// checked before any model call and bypass the cache entirely.
type Intent struct {
	Keywords []string `json:"keywords"`
	Response string   `json:"response"`
}
