package services

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"village-chatbot-backend/internal/logger"
)

// StatisticsService holds the village statistics spreadsheet in memory as
// rows of column -> value maps. The first sheet's first row is the header;
// header cells are trimmed. Admin uploads replace the snapshot atomically.
type StatisticsService struct {
	filePath string

	mu      sync.RWMutex
	headers []string
	rows    []map[string]string
}

func NewStatisticsService(filePath string) *StatisticsService {
	return &StatisticsService{filePath: filePath}
}

// Load reads the spreadsheet from disk into the snapshot. A missing file
// is not fatal: the service stays empty and data queries report no data.
func (s *StatisticsService) Load() error {
	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		logger.Warn("Statistics file not found, data queries will be empty", "path", s.filePath)
		s.mu.Lock()
		s.headers = nil
		s.rows = nil
		s.mu.Unlock()
		return nil
	}

	f, err := excelize.OpenFile(s.filePath)
	if err != nil {
		return fmt.Errorf("failed to open statistics file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("statistics file has no sheets")
	}

	rawRows, err := f.GetRows(sheets[0])
	if err != nil {
		return fmt.Errorf("failed to read statistics sheet: %w", err)
	}

	headers, rows := parseStatisticsRows(rawRows)

	s.mu.Lock()
	s.headers = headers
	s.rows = rows
	s.mu.Unlock()

	logger.Info("Statistics table loaded", "rows", len(rows), "columns", len(headers))
	return nil
}

func parseStatisticsRows(rawRows [][]string) ([]string, []map[string]string) {
	if len(rawRows) == 0 {
		return nil, nil
	}

	headers := make([]string, 0, len(rawRows[0]))
	for _, h := range rawRows[0] {
		headers = append(headers, strings.TrimSpace(h))
	}

	var rows []map[string]string
	for _, raw := range rawRows[1:] {
		row := make(map[string]string, len(headers))
		empty := true
		for i, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if i < len(raw) {
				value = strings.TrimSpace(raw[i])
			}
			if value != "" {
				empty = false
			}
			row[header] = value
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return headers, rows
}

// Headers returns the column names of the current snapshot.
func (s *StatisticsService) Headers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.headers...)
}

// Rows returns the current snapshot. Callers must not mutate the maps.
func (s *StatisticsService) Rows() []map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows
}

// Ready reports whether any statistics data is loaded.
func (s *StatisticsService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows) > 0
}

// FilePath returns where the statistics spreadsheet lives on disk.
func (s *StatisticsService) FilePath() string {
	return s.filePath
}
