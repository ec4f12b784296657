// ABOUTME: Responder contract and the rule-based default implementation
// ABOUTME: Maps user input text to reply content plus a category tag

package responder

import (
	"context"
	"strings"

	"github.com/riverfrot/chatline/internal/store"
)

// Reply is the result of generating a response: the content to deliver and
// the category tag describing which kind of handling produced it.
type Reply struct {
	Content  string
	Category string
}

// Responder generates a reply for user input. Implementations must not
// persist anything and must return a designated fallback reply rather than
// an error when no rule matches well-formed input.
type Responder interface {
	Respond(ctx context.Context, text string) (Reply, error)
}

// Rule matches input by keyword and produces a canned reply.
type Rule struct {
	Keywords []string
	Content  string
	Category string
}

// Rules is a keyword-matching Responder. Rules are evaluated in order and
// the first match wins; unmatched input gets the fallback reply.
type Rules struct {
	rules    []Rule
	fallback Reply
}

// NewRules creates a Responder with the given rules and fallback reply.
func NewRules(rules []Rule, fallback Reply) *Rules {
	return &Rules{rules: rules, fallback: fallback}
}

// Default returns the stock rule set used until a real generation backend is
// wired in: greetings, coding questions, and search requests each get their
// own category, everything else falls through to a clarification prompt.
func Default() *Rules {
	return NewRules(
		[]Rule{
			{
				Keywords: []string{"hello", "hi", "안녕"},
				Content:  "Hello! How can I help you today?",
				Category: store.CategoryGeneral,
			},
			{
				Keywords: []string{"code", "programming", "코드", "프로그래밍"},
				Content:  "A coding question! Which language or technology are you curious about?",
				Category: store.CategoryCode,
			},
			{
				Keywords: []string{"search", "검색"},
				Content:  "Let me look that up for you. One moment, please.",
				Category: store.CategorySearch,
			},
		},
		Reply{
			Content:  "Sorry, I did not quite catch that. Could you rephrase?",
			Category: store.CategoryGeneral,
		},
	)
}

// Respond evaluates the rules against the input and returns the first match
// or the fallback. It never fails for non-empty input.
func (r *Rules) Respond(_ context.Context, text string) (Reply, error) {
	lowered := strings.ToLower(text)
	for _, rule := range r.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				return Reply{Content: rule.Content, Category: rule.Category}, nil
			}
		}
	}
	return r.fallback, nil
}
