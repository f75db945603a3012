// Package enhance rewrites a business type into a residential-focused
// search phrase and a keyword list using Claude.
package enhance

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-harvest/internal/harvest"
	"github.com/sells-group/lead-harvest/pkg/anthropic"
)

const systemPrompt = "You are a helpful assistant that generates concise and relevant enhanced search queries for residential services."

const userPrompt = `Generate a concise enhanced search query for the business type: '%s', focusing on residential services for homeowners. The enhanced query should be 2-3 words long, specific, and targeted to improve search results. Avoid unnecessary adjectives or commercial terms.

Also, provide a list of 10-15 relevant keywords or partial keywords, prioritizing residential-related terms. Include 'exterior' and 'contract' in the keywords. Partial keywords are encouraged to match variations (e.g., 'illumin' for illuminate, illumination). Use 'light' instead of 'lights' to match both singular and plural forms.

Respond with the enhanced query on one line, followed by the keywords list on the next line, separated by commas. Example response format:
Enhanced Query: Residential Roofing
Keywords: roof, repair, install, exterior, contract, shingl, homeown, resident`

const (
	queryPrefix   = "enhanced query:"
	keywordPrefix = "keywords:"
)

// Enhancer builds the run query for a business type.
type Enhancer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates an Enhancer. A nil client makes every call use the fallback.
func New(client anthropic.Client, model string, maxTokens int) *Enhancer {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &Enhancer{client: client, model: model, maxTokens: int64(maxTokens)}
}

// Resolve returns the query for businessType. When the model call fails or
// its answer cannot be parsed the fallback query is returned; Resolve
// itself never fails.
func (e *Enhancer) Resolve(ctx context.Context, businessType string, extra []string) harvest.Query {
	if e == nil || e.client == nil {
		return Fallback(businessType, extra)
	}

	q, err := e.enhance(ctx, businessType, extra)
	if err != nil {
		zap.L().Warn("query enhancement failed, using original query",
			zap.String("business_type", businessType),
			zap.Error(err),
		)
		return Fallback(businessType, extra)
	}

	zap.L().Info("enhanced query",
		zap.String("business_type", businessType),
		zap.String("query", q.Text),
		zap.Strings("keywords", q.Keywords),
	)
	return q
}

func (e *Enhancer) enhance(ctx context.Context, businessType string, extra []string) (harvest.Query, error) {
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    systemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: fmt.Sprintf(userPrompt, businessType)}},
	})
	if err != nil {
		return harvest.Query{}, eris.Wrap(err, "enhance: create message")
	}
	resp.Usage.LogCost(e.model, "enhance")

	text, keywords, err := Parse(resp.Text())
	if err != nil {
		return harvest.Query{}, err
	}

	keywords = append(keywords, extra...)
	keywords = append(keywords, strings.Fields(text)...)
	return harvest.Query{Text: text, Keywords: Normalize(keywords)}, nil
}

// Parse reads the "Enhanced Query:" and "Keywords:" lines of a response.
// Both lines are required.
func Parse(text string) (string, []string, error) {
	var query string
	var keywords []string
	haveKeywords := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, queryPrefix):
			query = strings.TrimSpace(line[len(queryPrefix):])
		case strings.HasPrefix(lower, keywordPrefix):
			haveKeywords = true
			keywords = strings.Split(line[len(keywordPrefix):], ",")
		}
	}

	if query == "" {
		return "", nil, eris.New("enhance: response has no enhanced query")
	}
	if !haveKeywords {
		return "", nil, eris.New("enhance: response has no keywords")
	}
	return query, keywords, nil
}

// Fallback is the query used without enhancement: the business type is both
// the query text and the first keyword, followed by any extra keywords.
func Fallback(businessType string, extra []string) harvest.Query {
	text := strings.TrimSpace(businessType)
	return harvest.Query{Text: text, Keywords: Normalize(append([]string{text}, extra...))}
}

// Normalize lowercases, trims and deduplicates keywords, keeping first
// occurrence order.
func Normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || slices.Contains(out, k) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// SplitList splits a comma-separated flag value.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
