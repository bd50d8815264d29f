package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

// reportProspect is the stable projection of a prospect that takes part in
// the run fingerprint.
type reportProspect struct {
	ID        string      `json:"id"`
	Composite float64     `json:"composite"`
	Tier      domain.Tier `json:"tier"`
	Enriched  bool        `json:"enriched"`
}

// Fingerprint returns the sha256 of the RFC 8785 canonical form of the run
// outcome. Run identity and timestamps are left out so two runs that reached
// the same result share a fingerprint.
func Fingerprint(stats domain.RunStats, prospects []domain.ScoredItem) (string, error) {
	doc := struct {
		ServiceType string           `json:"service_type"`
		Stats       domain.RunStats  `json:"stats"`
		Prospects   []reportProspect `json:"prospects"`
	}{
		ServiceType: stats.ServiceType,
		Stats:       withoutTimes(stats),
		Prospects:   make([]reportProspect, 0, len(prospects)),
	}
	for _, p := range prospects {
		doc.Prospects = append(doc.Prospects, reportProspect{
			ID:        p.ID(),
			Composite: p.Composite,
			Tier:      p.Tier,
			Enriched:  p.Escalation == domain.EscalationEnriched,
		})
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal run outcome: %w", err)
	}
	return digest(raw)
}

// CanonicalStats renders stats as canonical JSON for storage.
func CanonicalStats(stats domain.RunStats) ([]byte, error) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("marshal run stats: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize run stats: %w", err)
	}
	return canonical, nil
}

func withoutTimes(stats domain.RunStats) domain.RunStats {
	stats.RunID = ""
	stats.StartedAt = time.Time{}
	stats.FinishedAt = time.Time{}
	return stats
}

func digest(raw []byte) (string, error) {
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize run outcome: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// BuildDigest formats qualified prospects as a Markdown message. Only Gold
// and Platinum prospects are listed, at most limit of them.
func BuildDigest(serviceType string, prospects []domain.ScoredItem, limit int) string {
	var lines []string
	for _, p := range prospects {
		if p.Tier.Rank() < domain.TierGold.Rank() {
			continue
		}
		if limit > 0 && len(lines) >= limit {
			break
		}
		lines = append(lines, fmt.Sprintf("- *%s* %.0f %s\n  %s\n  %s",
			strings.ToUpper(string(p.Tier)),
			p.Composite,
			escapeMarkdown(p.Item.Title),
			p.Item.Partition,
			p.Item.URL))
	}
	if len(lines) == 0 {
		return ""
	}
	header := fmt.Sprintf("*%s*: %d qualified prospects\n\n", escapeMarkdown(serviceType), len(lines))
	return header + strings.Join(lines, "\n\n")
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
