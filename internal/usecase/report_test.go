package usecase

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

func scoredItem(id string, composite float64, tier domain.Tier) domain.ScoredItem {
	return domain.ScoredItem{
		Item:      domain.RawItem{ID: id, Title: "Need *drone* pilot_" + id, Partition: "drones", URL: "https://example.com/" + id},
		Composite: composite,
		Tier:      tier,
	}
}

func TestFingerprintIgnoresRunIdentity(t *testing.T) {
	t.Parallel()

	prospects := []domain.ScoredItem{scoredItem("a", 91, domain.TierPlatinum)}

	first := domain.NewRunStats("run-1", "drone_services", time.Unix(100, 0))
	first.TotalFetched = 10
	second := domain.NewRunStats("run-2", "drone_services", time.Unix(999, 0))
	second.TotalFetched = 10
	second.FinishedAt = time.Unix(1999, 0)

	a, err := Fingerprint(first, prospects)
	require.NoError(t, err)
	b, err := Fingerprint(second, prospects)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	changed, err := Fingerprint(first, []domain.ScoredItem{scoredItem("a", 92, domain.TierPlatinum)})
	require.NoError(t, err)
	assert.NotEqual(t, a, changed)
}

func TestCanonicalStats(t *testing.T) {
	t.Parallel()

	stats := domain.NewRunStats("run-1", "drone_services", time.Unix(0, 0).UTC())
	stats.PreFilterReasons["too_short"] = 2

	raw, err := CanonicalStats(stats)
	require.NoError(t, err)

	var decoded domain.RunStats
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 2, decoded.PreFilterReasons["too_short"])

	again, err := CanonicalStats(stats)
	require.NoError(t, err)
	assert.Equal(t, raw, again)
}

func TestBuildDigest(t *testing.T) {
	t.Parallel()

	prospects := []domain.ScoredItem{
		scoredItem("a", 95, domain.TierPlatinum),
		scoredItem("b", 75, domain.TierGold),
		scoredItem("c", 50, domain.TierSilver),
		scoredItem("d", 10, domain.TierRejected),
	}

	digest := BuildDigest("drone_services", prospects, 10)
	assert.Contains(t, digest, "drone\\_services")
	assert.Contains(t, digest, "PLATINUM")
	assert.Contains(t, digest, "GOLD")
	assert.NotContains(t, digest, "SILVER")
	assert.Contains(t, digest, "\\*drone\\*")
	assert.Contains(t, digest, "2 qualified prospects")

	limited := BuildDigest("drone_services", prospects, 1)
	assert.Contains(t, limited, "1 qualified prospects")
	assert.NotContains(t, limited, "GOLD")

	assert.Empty(t, BuildDigest("drone_services", prospects[2:], 10))
}
