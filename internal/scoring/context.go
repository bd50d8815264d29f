package scoring

import (
	"strings"
	"unicode/utf8"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

const (
	backAndForthPoints    = 3.0
	substantialPoints     = 1.0
	maxSubstantial        = 2
	substantialMinLength  = 50
	problemSolutionPoints = 4.0
	overlapPoints         = 3.0
)

var problemPhrases = []string{
	"problem", "issue", "struggling", "broken", "damage", "can't", "cannot",
	"not working", "stuck", "failed", "behind schedule", "need to",
}

var solutionPhrases = []string{
	"looking for", "recommend", "anyone know", "need someone", "need a",
	"needs a", "hire", "hiring", "who can", "seeking", "suggestions",
}

// ContextResult is the output of the context phase.
type ContextResult struct {
	Score   float64
	Signals []string
}

// ContextScorer derives the context sub-score from the comment tree,
// problem/solution phrasing and vocabulary overlap with the profile.
type ContextScorer struct {
	vocabulary map[string]struct{}
	cap        float64
}

func NewContextScorer(profile domain.ServiceProfile) *ContextScorer {
	return &ContextScorer{
		vocabulary: tokens(strings.Join(profile.SearchTerms, " ")),
		cap:        profile.Caps.Context,
	}
}

func (s *ContextScorer) Score(item domain.RawItem) ContextResult {
	var res ContextResult
	var points float64

	if backAndForth(item) {
		points += backAndForthPoints
		res.Signals = append(res.Signals, "context:back_and_forth")
	}

	substantial := 0
	for _, c := range item.Comments {
		if utf8.RuneCountInString(strings.TrimSpace(c.Body)) > substantialMinLength {
			substantial++
		}
	}
	if substantial > 0 {
		points += substantialPoints * float64(min(substantial, maxSubstantial))
		res.Signals = append(res.Signals, "context:substantial_replies")
	}

	text := normalize(item.Title, item.Body)
	_, problem := firstMatch(text, problemPhrases)
	_, solution := firstMatch(text, solutionPhrases)
	if problem && solution {
		points += problemSolutionPoints
		res.Signals = append(res.Signals, "context:problem_solution")
	}

	if ratio := s.overlap(text); ratio > 0 {
		points += overlapPoints * ratio
		res.Signals = append(res.Signals, "context:vocabulary_overlap")
	}

	res.Score = clamp(points, 0, s.cap)
	return res
}

// overlap is the share of profile vocabulary present in the item.
func (s *ContextScorer) overlap(text string) float64 {
	if len(s.vocabulary) == 0 {
		return 0
	}
	words := tokens(text)
	hits := 0
	for w := range s.vocabulary {
		if _, ok := words[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(s.vocabulary))
}

// backAndForth is true when the author answers in the thread or when the
// thread has at least two nested replies.
func backAndForth(item domain.RawItem) bool {
	nested := 0
	for _, c := range item.Comments {
		if item.Author != "" && c.Author == item.Author {
			return true
		}
		if c.Depth >= 2 {
			nested++
		}
	}
	return nested >= 2
}
