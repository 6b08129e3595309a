package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken counts tokens for OpenAI-family models.
type Tiktoken struct {
	encoding  string
	maxTokens int

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

var openAIEncodings = map[string]struct {
	encoding  string
	maxTokens int
}{
	"gpt-4o":        {"o200k_base", 128000},
	"gpt-4.1":       {"o200k_base", 1047576},
	"o3":            {"o200k_base", 200000},
	"gpt-4-turbo":   {"cl100k_base", 128000},
	"gpt-4":         {"cl100k_base", 8192},
	"gpt-3.5-turbo": {"cl100k_base", 16385},
}

// NewTiktoken creates a tiktoken-backed tokenizer for the named encoding.
func NewTiktoken(encoding string, maxTokens int) *Tiktoken {
	return &Tiktoken{encoding: encoding, maxTokens: maxTokens}
}

// the encoding data may be downloaded on first use
func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *Tiktoken) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *Tiktoken) CountMessages(messages []Message) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	total := 3
	for _, m := range messages {
		total += 4 + len(t.enc.Encode(m.Role, nil, nil)) + len(t.enc.Encode(m.Content, nil, nil))
	}
	return total, nil
}

func (t *Tiktoken) MaxTokens() int { return t.maxTokens }

func (t *Tiktoken) Name() string { return "tiktoken[" + t.encoding + "]" }

// RegisterOpenAI registers tiktoken for the known OpenAI model prefixes.
func RegisterOpenAI() {
	for prefix, info := range openAIEncodings {
		Register(prefix, NewTiktoken(info.encoding, info.maxTokens))
	}
}
