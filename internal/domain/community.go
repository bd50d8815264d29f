package domain

// Community sources.
const (
	CommunityFromKeyword = "keyword_search"
	CommunityFromRelated = "related"
)

// Community is a partition found by discovery rather than listed in a
// profile.
type Community struct {
	Name        string  `json:"name"`
	Subscribers int     `json:"subscribers"`
	ActiveUsers int     `json:"active_users"`
	Description string  `json:"description"`
	Source      string  `json:"source"`
	Keyword     string  `json:"keyword,omitempty"`
	Score       float64 `json:"score"`
}
