// Package sentiment produces simulated social sentiment readings.
package sentiment

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Platforms sampled for every symbol.
var Platforms = []string{"twitter", "reddit", "telegram"}

// Labels.
const (
	LabelBullish = "bullish"
	LabelNeutral = "neutral"
	LabelBearish = "bearish"
)

// labelThreshold splits the score range into the three labels.
var labelThreshold = decimal.RequireFromString("0.2")

// Record is one platform's sentiment for a symbol.
type Record struct {
	Symbol    string          `json:"symbol"`
	Platform  string          `json:"platform"`
	Score     decimal.Decimal `json:"score"`
	Label     string          `json:"label"`
	Mentions  int             `json:"mentions"`
	Trending  bool            `json:"trending"`
	Timestamp time.Time       `json:"timestamp"`
}

// Label classifies a score in [-1, 1].
func Label(score decimal.Decimal) string {
	switch {
	case score.GreaterThan(labelThreshold):
		return LabelBullish
	case score.LessThan(labelThreshold.Neg()):
		return LabelBearish
	default:
		return LabelNeutral
	}
}

// Generator draws random records. A nil rng uses the global source.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator. Pass a seeded *rand.Rand for
// reproducible output.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng, now: time.Now}
}

func (g *Generator) float() float64 {
	if g.rng != nil {
		return g.rng.Float64()
	}
	return rand.Float64()
}

func (g *Generator) intN(n int) int {
	if g.rng != nil {
		return g.rng.IntN(n)
	}
	return rand.IntN(n)
}

// Generate returns one record per symbol and platform.
func (g *Generator) Generate(symbols []string) []Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	out := make([]Record, 0, len(symbols)*len(Platforms))
	for _, sym := range symbols {
		for _, platform := range Platforms {
			score := decimal.NewFromFloat(g.float()*2 - 1).Round(4)
			mentions := g.intN(5000)
			out = append(out, Record{
				Symbol:    sym,
				Platform:  platform,
				Score:     score,
				Label:     Label(score),
				Mentions:  mentions,
				Trending:  mentions > 3500,
				Timestamp: now,
			})
		}
	}
	return out
}
