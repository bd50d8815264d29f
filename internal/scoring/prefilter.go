package scoring

import (
	"strings"
	"unicode/utf8"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

const (
	MinTextLength = 50
	MaxTextLength = 2000
	maxLinks      = 3
)

// Rejection reasons reported by the prefilter.
const (
	ReasonTooShort       = "too_short"
	ReasonTooLong        = "too_long"
	ReasonNoBusinessTerm = "no_business_term"
	ReasonSpam           = "spam"
	ReasonNotANeed       = "not_a_need"
)

var businessVocabulary = []string{
	"need", "looking", "help", "service", "business", "company", "client",
	"hire", "hiring", "budget", "cost", "price", "quote", "project", "pay",
	"professional", "freelance", "contractor", "agency", "startup", "urgent",
	"recommend",
}

var spamPhrases = []string{
	"click here", "buy now", "limited time offer", "promo code", "discount code",
	"dm me for", "check out my", "subscribe to my", "follow me on",
	"earn money from home", "work from home opportunity", "crypto giveaway",
}

var needPhrases = []string{
	"need", "looking for", "seeking", "recommend", "anyone know", "anyone have",
	"hire", "hiring", "help", "want someone", "searching for", "require",
}

// Verdict is the outcome of the prefilter for one item.
type Verdict struct {
	Pass   bool
	Reason string
}

// PreFilter is the cheap hard gate in front of scoring. It holds no mutable
// state and is safe for concurrent use.
type PreFilter struct {
	requireNeed bool
	vocabulary  []string
}

// NewPreFilter builds the gate for a profile. The profile's search terms
// extend the generic business vocabulary.
func NewPreFilter(profile domain.ServiceProfile) *PreFilter {
	vocab := append([]string(nil), businessVocabulary...)
	vocab = append(vocab, profile.SearchTerms...)
	return &PreFilter{requireNeed: profile.RequireNeedPhrasing, vocabulary: vocab}
}

// Passes reports whether an item may proceed to scoring.
func (f *PreFilter) Passes(item domain.RawItem) bool {
	return f.Evaluate(item).Pass
}

// Evaluate applies the checks in order and reports the first failure.
func (f *PreFilter) Evaluate(item domain.RawItem) Verdict {
	raw := item.Text()
	length := utf8.RuneCountInString(raw)
	switch {
	case length < MinTextLength:
		return Verdict{Reason: ReasonTooShort}
	case length > MaxTextLength:
		return Verdict{Reason: ReasonTooLong}
	}

	text := strings.ToLower(raw)
	if isSpam(text, strings.ToLower(strings.TrimSpace(item.Body))) {
		return Verdict{Reason: ReasonSpam}
	}
	if _, ok := firstMatch(text, f.vocabulary); !ok {
		return Verdict{Reason: ReasonNoBusinessTerm}
	}
	if f.requireNeed && !isNeed(text) {
		return Verdict{Reason: ReasonNotANeed}
	}
	return Verdict{Pass: true}
}

func isSpam(text, body string) bool {
	if body == "[deleted]" || body == "[removed]" {
		return true
	}
	links := strings.Count(text, "http://") + strings.Count(text, "https://")
	links += strings.Count(strings.ReplaceAll(strings.ReplaceAll(text, "https://www.", ""), "http://www.", ""), "www.")
	if links >= maxLinks {
		return true
	}
	_, spam := firstMatch(text, spamPhrases)
	return spam
}

func isNeed(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	_, ok := firstMatch(text, needPhrases)
	return ok
}
