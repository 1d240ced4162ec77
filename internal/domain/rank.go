package domain

const (
	pointsPerTier  = 250
	pointsPerLevel = 50
	levelsPerTier  = 5
)

// Tiers is ordered lowest to highest.
var Tiers = [...]string{
	"Bronze",
	"Silver",
	"Gold",
	"Platinum",
	"Diamond",
	"Heroic",
	"Crystal",
	"Master",
	"Champion",
	"Grandmaster",
	"Mythic",
	"Immortal",
}

// RankDetails describes where a total score sits in the tier ladder.
// Level counts down from 5 to 1 as a student approaches the next tier.
type RankDetails struct {
	Tier            string  `json:"tier"`
	Level           int     `json:"level"`
	ProgressPercent float64 `json:"progressPercent"`
	XPInTier        int     `json:"xpInTier"`
	XPForNextRank   int     `json:"xpForNextRank"`
	NextTier        *string `json:"nextTier"`
	TierIndex       int     `json:"tierIndex"`
}

// RankDetailsFor maps a total score onto its tier. Scores past the top threshold
// stay in the top tier; negative totals are treated as zero.
func RankDetailsFor(total int) RankDetails {
	if total < 0 {
		total = 0
	}
	tierIndex := total / pointsPerTier
	if last := len(Tiers) - 1; tierIndex > last {
		tierIndex = last
	}
	xp := total % pointsPerTier

	details := RankDetails{
		Tier:            Tiers[tierIndex],
		Level:           levelsPerTier - xp/pointsPerLevel,
		ProgressPercent: float64(xp) / pointsPerTier * 100,
		XPInTier:        xp,
		XPForNextRank:   pointsPerTier - xp,
		TierIndex:       tierIndex,
	}
	if tierIndex+1 < len(Tiers) {
		next := Tiers[tierIndex+1]
		details.NextTier = &next
	}
	return details
}
