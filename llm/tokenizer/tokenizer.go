package tokenizer

import (
	"fmt"
	"strings"
	"sync"
)

// Tokenizer counts tokens for one model family.
type Tokenizer interface {
	CountTokens(text string) (int, error)
	// CountMessages includes the per-message overhead (role markers, separators).
	CountMessages(messages []Message) (int, error)
	MaxTokens() int
	Name() string
}

// Message is the minimal message shape the tokenizer needs.
type Message struct {
	Role    string
	Content string
}

var (
	registry   = make(map[string]Tokenizer)
	registryMu sync.RWMutex
)

// Register binds a tokenizer to a model id or model id prefix.
func Register(model string, t Tokenizer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[model] = t
}

// Get returns the tokenizer for model. Exact ids win, then the longest
// registered prefix ("gpt-4o" matches "gpt-4o-mini-2024").
func Get(model string) (Tokenizer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if t, ok := registry[model]; ok {
		return t, nil
	}
	var (
		best  string
		found Tokenizer
	)
	for prefix, t := range registry {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best, found = prefix, t
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
	}
	return found, nil
}

// GetTokenizerOrEstimator falls back to the character estimator when no
// tokenizer is registered for model.
func GetTokenizerOrEstimator(model string) Tokenizer {
	t, err := Get(model)
	if err != nil {
		return NewEstimator(0)
	}
	return t
}
