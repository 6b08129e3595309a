package llm

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/flowagent/llm/tokenizer"
)

// Price is the USD cost per one million tokens.
type Price struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// PriceTable maps a model id (or id prefix) to its price.
type PriceTable map[string]Price

// Lookup finds the price for model, preferring the longest matching prefix.
func (t PriceTable) Lookup(model string) (Price, bool) {
	if p, ok := t[model]; ok {
		return p, true
	}
	best, found := "", false
	for prefix := range t {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best, found = prefix, true
		}
	}
	if !found {
		return Price{}, false
	}
	return t[best], true
}

// Cost returns the USD cost of the given usage.
func (p Price) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*p.InputPerMillion/1e6 + float64(outputTokens)*p.OutputPerMillion/1e6
}

// AccountingCaller fills in metadata a provider left out: token counts are
// estimated with the model's tokenizer, cost comes from the price table and
// duration from the wall clock.
type AccountingCaller struct {
	next   Caller
	prices PriceTable
	now    func() time.Time
}

// NewAccountingCaller wraps next.
func NewAccountingCaller(next Caller, prices PriceTable) *AccountingCaller {
	return &AccountingCaller{next: next, prices: prices, now: time.Now}
}

// Call implements Caller.
func (a *AccountingCaller) Call(ctx context.Context, params ModelParams, req CallRequest) (*CallResult, error) {
	start := a.now()
	res, err := a.next.Call(ctx, params, req)
	if err != nil {
		return nil, err
	}

	md := &res.Metadata
	if md.Model == "" {
		md.Model = params.Model
	}
	if md.InputTokens == 0 && md.OutputTokens == 0 {
		tk := tokenizer.GetTokenizerOrEstimator(md.Model)
		md.InputTokens = estimateInput(tk, req)
		if n, err := tk.CountTokens(res.Response.Text); err == nil {
			md.OutputTokens = n
		}
	}
	if md.CostUSD == 0 {
		if p, ok := a.prices.Lookup(md.Model); ok {
			md.CostUSD = p.Cost(md.InputTokens, md.OutputTokens)
		}
	}
	if md.Duration == 0 {
		md.Duration = a.now().Sub(start)
	}
	return res, nil
}

func estimateInput(tk tokenizer.Tokenizer, req CallRequest) int {
	msgs := make([]tokenizer.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, tokenizer.Message{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		content := m.Content
		for _, tr := range m.ToolResults {
			content += "\n" + tr.Content
		}
		msgs = append(msgs, tokenizer.Message{Role: string(m.Role), Content: content})
	}
	n, err := tk.CountMessages(msgs)
	if err != nil {
		return 0
	}
	return n
}
