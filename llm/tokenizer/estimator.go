package tokenizer

import "unicode/utf8"

// Estimator approximates token counts from character classes:
// CJK runs at about 1.5 characters per token, everything else about 4.
type Estimator struct {
	maxTokens int
}

// NewEstimator creates an estimator; maxTokens <= 0 defaults to 4096.
func NewEstimator(maxTokens int) *Estimator {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Estimator{maxTokens: maxTokens}
}

func (e *Estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	n := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if n == 0 {
		n = 1
	}
	return n, nil
}

func (e *Estimator) CountMessages(messages []Message) (int, error) {
	total := 3
	for _, m := range messages {
		n, _ := e.CountTokens(m.Content)
		total += n + 4
	}
	return total, nil
}

func (e *Estimator) MaxTokens() int { return e.maxTokens }

func (e *Estimator) Name() string { return "estimator" }

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}
