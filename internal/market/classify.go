package market

import "strings"

// Category labels produced by Classify.
const (
	CategoryTier1     = "tier-1"
	CategoryTier2     = "tier-2"
	CategorySponsored = "sponsored"
	CategoryLongTerm  = "long-term"
	CategoryOther     = "other"
)

// Score deltas per category. Scale chosen to sit alongside the book-quality
// penalties (−1000..−3000) without drowning the volume and depth terms.
const (
	tier1Bonus    = 8000.0
	tier2Bonus    = 3000.0
	negativeDelta = -4000.0
	sponsorBonus  = 2000.0
)

// Keyword tables are data, not code. Matching is case-insensitive substring
// against the market title. The three lists are disjoint by construction;
// tier-1 is checked first and wins outright.

// tier1Keywords are the absolute-priority topics: near-term, high-turnover
// markets the venue sponsors heavily and where spreads refresh often.
var tier1Keywords = []string{
	"fed decision",
	"fed rate",
	"fomc",
	"presidential election",
	"nfl",
	"super bowl",
	"bitcoin above",
	"ethereum above",
	"btc above",
	"eth above",
}

// tier2Keywords cover the broader macro, crypto and sports universe.
var tier2Keywords = []string{
	"bitcoin",
	"ethereum",
	"btc",
	"eth",
	"solana",
	"crypto",
	"inflation",
	"recession",
	"gdp",
	"interest rate",
	"nba",
	"premier league",
	"champions league",
	"ufc",
}

// negativeKeywords flag long-horizon markets where capital sits idle for
// months; these get penalized, not excluded.
var negativeKeywords = []string{
	"by 2030",
	"by 2040",
	"by end of 2027",
	"in our lifetime",
	"before 2030",
	"this decade",
	"nobel",
	"mars landing",
}

// Classification is the category verdict for one market title.
type Classification struct {
	Bonus    float64 // score delta contributed by category + sponsor status
	Category string
	Tier1    bool
}

// Classify assigns a category and score bonus from the market title and its
// sponsor pool. A sponsor pool of any size adds a fixed bonus and upgrades
// an otherwise-unremarkable market to "sponsored".
func Classify(title string, sponsorPool float64) Classification {
	lower := strings.ToLower(title)

	cls := Classification{Category: CategoryOther}
	switch {
	case matchAny(lower, tier1Keywords):
		cls.Bonus = tier1Bonus
		cls.Category = CategoryTier1
		cls.Tier1 = true
	case matchAny(lower, tier2Keywords):
		cls.Bonus = tier2Bonus
		cls.Category = CategoryTier2
	case matchAny(lower, negativeKeywords):
		cls.Bonus = negativeDelta
		cls.Category = CategoryLongTerm
	}

	if sponsorPool > 0 {
		cls.Bonus += sponsorBonus
		if cls.Category == CategoryOther {
			cls.Category = CategorySponsored
		}
	}

	return cls
}

func matchAny(lowerTitle string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowerTitle, kw) {
			return true
		}
	}
	return false
}
