package services

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/models"
)

// IntentService answers trivially recognizable questions (greetings,
// thanks, small talk) from a static intent file before any model call.
type IntentService struct {
	mu      sync.RWMutex
	intents []models.Intent
}

func NewIntentService() *IntentService {
	return &IntentService{}
}

// Load reads the intent definitions. A missing file just disables intent
// matching; the router then relies on the chitchat model.
func (s *IntentService) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Intents file not found, intent matching disabled", "path", path)
			return nil
		}
		return err
	}

	var intents []models.Intent
	if err := json.Unmarshal(data, &intents); err != nil {
		return err
	}

	s.mu.Lock()
	s.intents = intents
	s.mu.Unlock()

	logger.Info("Intents loaded", "count", len(intents))
	return nil
}

// Match returns the canned response for the first intent whose keyword
// occurs in the question, or ok=false when nothing matches.
func (s *IntentService) Match(question string) (string, bool) {
	lowered := strings.ToLower(question)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, intent := range s.intents {
		for _, keyword := range intent.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				return intent.Response, true
			}
		}
	}
	return "", false
}
