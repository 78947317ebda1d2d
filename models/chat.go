package models

// AskRequest is the /ask payload.
type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
}

// AskResponse carries the assembled answer. SessionID echoes the caller's id
// when one was supplied so a conversation keeps a stable identifier.
type AskResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"sessionId"`
}

// Question categories produced by the router classification step.
const (
	CategoryDataQuery    = "data_query"
	CategoryGeneralQuery = "general_query"
	CategoryChitchat     = "chitchat"
)

// Classification is the structured output expected from the router model.
type Classification struct {
	Category string `json:"category"`
}

// QueryResult is the outcome of a structured filter over the statistics table.
type QueryResult struct {
	Count       int                 `json:"count"`
	SampleNames []string            `json:"sample_names,omitempty"`
	Rows        []map[string]string `json:"-"`
}
