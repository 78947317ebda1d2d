package services

import (
	"context"
	"fmt"
	"strings"

	"village-chatbot-backend/internal/expr"
	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/models"
)

// CompletionClient is the slice of the Gemini client the answer pipeline
// needs. Kept as an interface so tests can script model replies.
type CompletionClient interface {
	Complete(ctx context.Context, modelName, prompt string, temperature float32) (string, error)
	CompleteJSON(ctx context.Context, modelName, prompt string, out any) error
}

// DataQueryService turns a natural-language question about village
// statistics into a filter over the loaded spreadsheet.
//
// The model only ever produces a filter expression in a closed grammar;
// the expression is validated and parsed before anything is evaluated,
// so a bad or hostile reply can at worst match zero rows.
type DataQueryService struct {
	gemini CompletionClient
	stats  *StatisticsService
	model  string
}

func NewDataQueryService(gemini CompletionClient, stats *StatisticsService, model string) *DataQueryService {
	return &DataQueryService{gemini: gemini, stats: stats, model: model}
}

const plannerPromptTemplate = `You are a data analyst for a village office.

You will receive a question from the user and the column headers of the
village statistics table.

Question: %q
Headers: [%s]

Produce a filter expression in this exact grammar and nothing else:

  expression := clause (("AND" | "OR") clause)*
  clause     := "(" expression ")" | "NOT" clause | comparison
  comparison := "column name" ("contains" | "==" | "!=") "value"

Column names and values must be double-quoted. Comparisons ignore case,
extra spaces and hyphens, so "laki-laki" also matches "Laki - Laki".

Examples:
- "jumlah laki laki" => "Jenis Kelamin" contains "laki-laki"
- "penduduk perempuan" => "Jenis Kelamin" contains "perempuan"
- "warga islam di dusun krajan" => "Agama" contains "islam" AND "Dusun" contains "krajan"

Respond ONLY with a JSON like: {"filter": "\"Jenis Kelamin\" contains \"laki-laki\""}`

type filterPlan struct {
	Filter string `json:"filter"`
}

// Execute plans and runs a statistics filter for the question. Any
// failure (no data, bad plan, unsafe expression) is returned as an error
// and fails the request; only an empty result set invites a retrieval
// fallback, and that decision belongs to the caller.
func (s *DataQueryService) Execute(ctx context.Context, question string) (*models.QueryResult, error) {
	rows := s.stats.Rows()
	if len(rows) == 0 {
		return nil, fmt.Errorf("statistics table is empty")
	}

	prompt := fmt.Sprintf(plannerPromptTemplate, question, strings.Join(s.stats.Headers(), ", "))

	var plan filterPlan
	if err := s.gemini.CompleteJSON(ctx, s.model, prompt, &plan); err != nil {
		return nil, fmt.Errorf("planner request failed: %w", err)
	}
	if strings.TrimSpace(plan.Filter) == "" {
		return nil, fmt.Errorf("planner produced no filter")
	}

	predicate, err := expr.Parse(plan.Filter)
	if err != nil {
		logger.Warn("Planner filter rejected", "filter", plan.Filter, "error", err)
		return nil, fmt.Errorf("planner filter rejected: %w", err)
	}

	result := &models.QueryResult{}
	for _, row := range rows {
		if !predicate.Eval(row) {
			continue
		}
		result.Count++
		result.Rows = append(result.Rows, row)
	}

	// Small result sets get named in the answer, mirroring how the
	// office staff would reply.
	if result.Count > 0 && result.Count <= 5 {
		for _, row := range result.Rows {
			if name := strings.TrimSpace(row["Nama"]); name != "" {
				result.SampleNames = append(result.SampleNames, name)
			}
		}
	}

	logger.Info("Data query executed", "filter", plan.Filter, "matches", result.Count)
	return result, nil
}

// Summary renders the analysis line handed to the answer formatter.
func (s *DataQueryService) Summary(result *models.QueryResult) string {
	summary := fmt.Sprintf("Ditemukan %d data yang cocok.", result.Count)
	if len(result.SampleNames) > 0 {
		summary += fmt.Sprintf(" Nama: %s.", strings.Join(result.SampleNames, ", "))
	}
	return summary
}
