package workflow

import (
	"strings"
	"unicode"
)

// rule pairs an intent predicate with the handler it selects. Rules are
// evaluated in order and the first match wins.
type rule struct {
	name   string
	match  func(t *turn) bool
	handle handler
}

type keywords struct {
	words   []string
	exact   []string
	phrases []string
}

var (
	documentQueryKeywords = keywords{
		words:   []string{"document", "attachment"},
		exact:   []string{"file", "files", "upload", "uploads", "uploaded"},
		phrases: []string{"search my", "look through my"},
	}
	researchKeywords = keywords{
		words:   []string{"research", "precedent", "authority", "authorities"},
		phrases: []string{"look up the law", "find the law", "case law"},
	}
	draftKeywords = keywords{
		words:   []string{"draft"},
		phrases: []string{"write the opinion", "write up the opinion", "prepare the opinion"},
	}
	reviewKeywords = keywords{
		words:   []string{"review", "proofread"},
		phrases: []string{"check the opinion", "quality check"},
	}
)

func defaultRules(o *Orchestrator) []rule {
	return []rule{
		{name: "document_query", match: matching(documentQueryKeywords), handle: o.handleDocumentQuery},
		{name: "research", match: matching(researchKeywords), handle: o.handleResearch},
		{name: "draft", match: matching(draftKeywords), handle: o.handleDrafting},
		{name: "review", match: matching(reviewKeywords), handle: o.handleReview},
		{name: "phase", match: func(*turn) bool { return true }, handle: o.handlePhase},
	}
}

func (o *Orchestrator) route(t *turn) rule {
	for _, r := range o.rules {
		if r.match(t) {
			return r
		}
	}
	return o.rules[len(o.rules)-1]
}

func matching(k keywords) func(t *turn) bool {
	return func(t *turn) bool {
		return k.matches(t.message)
	}
}

// matches reports whether text contains a phrase, an exact keyword, or a
// word starting with one of the prefix keywords ("drafting" matches
// "draft", "preview" does not match "review", "filed" does not match "file").
func (k keywords) matches(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range k.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		for _, w := range k.exact {
			if tok == w {
				return true
			}
		}
		for _, w := range k.words {
			if strings.HasPrefix(tok, w) {
				return true
			}
		}
	}
	return false
}
