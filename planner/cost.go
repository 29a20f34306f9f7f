package planner

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/llm"
	"github.com/BaSui01/pathfinder/llm/tokenizer"
	"github.com/BaSui01/pathfinder/workflow"
)

// Cost confidence tiers.
const (
	CostConfirmed = "confirmed"
	CostEstimated = "estimated"
	CostUnknown   = "unknown"
)

// Cost tier constants.
const (
	UnknownValueScore  = 0.3
	EstimatedValueCap  = 0.7
	UnknownCostNote    = "Pricing could not be verified; treat the cost as uncertain."
	EstimateDisclaimer = "Market estimate, not confirmed by the venue."
	NoDataCostNote     = "No website or pricing content was available for this venue."
)

var pricingHints = []string{"pric", "menu", "rate", "package", "fee", "cost", "book", "admission", "ticket", "group", "party", "event"}

var priceLevels = map[string]int{"$": 1, "$$": 2, "$$$": 3, "$$$$": 4}

// NoDataCostProfile is the fixed record used when nothing could be scraped.
func NoDataCostProfile() CostProfile {
	return CostProfile{
		HiddenFees: []HiddenFee{},
		ValueScore: UnknownValueScore,
		Confidence: CostUnknown,
		Notes:      NoDataCostNote,
	}
}

// ApplyConfidenceTier post-processes an extracted profile. It is idempotent.
func ApplyConfidenceTier(p CostProfile) CostProfile {
	p.Confidence = strings.ToLower(strings.TrimSpace(p.Confidence))
	p.ValueScore = clamp01(p.ValueScore)
	switch {
	case p.Confidence == CostUnknown || p.BaseCost == 0 ||
		(p.Confidence != CostEstimated && p.Confidence != CostConfirmed):
		p.Confidence = CostUnknown
		p.ValueScore = UnknownValueScore
		p.Notes = UnknownCostNote
	case p.Confidence == CostEstimated:
		p.ValueScore = math.Min(p.ValueScore, EstimatedValueCap)
		if !strings.HasPrefix(p.Notes, EstimateDisclaimer) {
			p.Notes = strings.TrimSpace(EstimateDisclaimer + " " + p.Notes)
		}
	}
	return p
}

// ResolvePriceRange reconciles the google and yelp price signals. Equal
// signals give high confidence and a single signal medium confidence.
// Conflicting ones give the median with low confidence; a half rounds to
// even, so $$ against $$$ stays $$.
func ResolvePriceRange(google, yelp string) (price, confidence string) {
	switch {
	case google != "" && yelp != "":
		if google == yelp {
			return google, "high"
		}
		g, ok := priceLevels[google]
		if !ok {
			g = 2
		}
		y, ok := priceLevels[yelp]
		if !ok {
			y = 2
		}
		median := int(math.RoundToEven(float64(g+y) / 2))
		return strings.Repeat("$", median), "low"
	case google != "":
		return google, "medium"
	case yelp != "":
		return yelp, "medium"
	}
	return "", "none"
}

// PriceValueScore maps a price level to a value heuristic, lowered for weak confidence.
func PriceValueScore(price, confidence string) float64 {
	level, ok := priceLevels[price]
	if !ok {
		return 0.5
	}
	score := 1.0 - 0.2*float64(level)
	switch confidence {
	case "low":
		score -= 0.1
	case "medium":
		score -= 0.05
	}
	return math.Max(0.1, roundTo(score, 2))
}

const costPrompt = `Extract the cost of a group outing at this venue from its website text.

Venue: %s
Group size: %d
Budget tier: %s

Website text:
%s

Return ONLY a JSON object:
{"base_cost": <number>, "hidden_fees": [{"label": "<fee>", "amount": <number>}], "total_cost": <number>,
 "per_person": <number>, "value_score": <0.0-1.0>, "confidence": "confirmed" | "estimated" | "unknown", "notes": "<one sentence>"}
Use "confirmed" only when prices are stated on the page.
`

type costReply struct {
	BaseCost   float64 `json:"base_cost"`
	HiddenFees []struct {
		Label  string  `json:"label"`
		Name   string  `json:"name"`
		Amount float64 `json:"amount"`
	} `json:"hidden_fees"`
	TotalCost  float64 `json:"total_cost"`
	PerPerson  float64 `json:"per_person"`
	ValueScore float64 `json:"value_score"`
	Confidence string  `json:"confidence"`
	Notes      string  `json:"notes"`
}

// CostStage estimates per-venue cost from scraped website content.
type CostStage struct {
	gen     Generator
	scraper PageScraper
	tok     tokenizer.Tokenizer
	cfg     Config
	logger  *zap.Logger
}

// NewCostStage creates the cost stage. A nil tokenizer uses the estimator.
func NewCostStage(gen Generator, scraper PageScraper, tok tokenizer.Tokenizer, cfg Config, logger *zap.Logger) *CostStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tok == nil {
		tok = tokenizer.NewEstimatorTokenizer()
	}
	return &CostStage{
		gen:     gen,
		scraper: scraper,
		tok:     tok,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "cost")),
	}
}

// Analyze reads Candidates and returns the CostProfiles write.
func (c *CostStage) Analyze(ctx context.Context, s *State) (func(*State), error) {
	intent := s.intent()
	results := workflow.ForEach(ctx, s.Candidates, c.cfg.Concurrency, func(ctx context.Context, v Venue) CostProfile {
		return c.profileVenue(ctx, v, intent)
	})

	profiles := make(map[string]CostProfile, len(results))
	confirmed := 0
	for i, v := range s.Candidates {
		profiles[v.VenueID] = results[i]
		if results[i].Confidence == CostConfirmed {
			confirmed++
		}
	}
	c.logger.Info("cost analysis complete",
		zap.Int("confirmed", confirmed),
		zap.Int("venues", len(s.Candidates)),
	)
	return func(s *State) { s.CostProfiles = profiles }, nil
}

func (c *CostStage) profileVenue(ctx context.Context, v Venue, intent Intent) CostProfile {
	price, priceConfidence := venuePrice(v)
	withPrice := func(p CostProfile) CostProfile {
		p.PriceRange = price
		p.PriceConfidence = priceConfidence
		return p
	}

	if v.Website == "" || c.scraper == nil || c.gen == nil {
		return withPrice(NoDataCostProfile())
	}
	content, sources := c.scrapeSite(ctx, v.Website)
	if content == "" {
		return withPrice(NoDataCostProfile())
	}

	prompt := fmt.Sprintf(costPrompt, v.Name, max(intent.GroupSize, 1), firstNonEmpty(intent.BudgetTier, "medium"), content)
	out, err := c.gen.Generate(ctx, prompt, llm.WithJSON())
	if err != nil {
		c.logger.Warn("cost extraction failed", zap.String("venue_id", v.VenueID), zap.Error(err))
		return withPrice(NoDataCostProfile())
	}
	reply, err := llm.DecodeJSON[costReply](out)
	if err != nil {
		c.logger.Warn("cost reply malformed", zap.String("venue_id", v.VenueID), zap.Error(err))
		return withPrice(NoDataCostProfile())
	}

	fees := make([]HiddenFee, 0, len(reply.HiddenFees))
	for _, f := range reply.HiddenFees {
		fees = append(fees, HiddenFee{Label: firstNonEmpty(f.Label, f.Name), Amount: f.Amount})
	}
	p := ApplyConfidenceTier(CostProfile{
		BaseCost:   reply.BaseCost,
		HiddenFees: fees,
		TotalCost:  reply.TotalCost,
		PerPerson:  reply.PerPerson,
		ValueScore: reply.ValueScore,
		Confidence: reply.Confidence,
		Notes:      reply.Notes,
		Sources:    sources,
	})
	return withPrice(p)
}

// scrapeSite fetches up to PricingPages pricing pages plus the homepage and
// returns their concatenated text truncated to the token budget.
func (c *CostStage) scrapeSite(ctx context.Context, website string) (string, []string) {
	callCtx, cancel := withCallTimeout(ctx, c.cfg.CallTimeout)
	links, err := c.scraper.DiscoverPages(callCtx, website)
	cancel()
	if err != nil {
		c.logger.Debug("page discovery failed", zap.String("url", website), zap.Error(err))
	}

	urls := append(SelectPricingPages(links, website, c.cfg.PricingPages), website)
	texts := workflow.ForEach(ctx, urls, 0, func(ctx context.Context, u string) string {
		callCtx, cancel := withCallTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
		text, err := c.scraper.Scrape(callCtx, u)
		if err != nil {
			c.logger.Debug("scrape failed", zap.String("url", u), zap.Error(err))
			return ""
		}
		return strings.TrimSpace(text)
	})

	var b strings.Builder
	var sources []string
	for i, t := range texts {
		if t == "" {
			continue
		}
		sources = append(sources, urls[i])
		fmt.Fprintf(&b, "## %s\n%s\n\n", urls[i], t)
	}
	if b.Len() == 0 {
		return "", nil
	}
	return tokenizer.TruncateOrKeep(c.tok, b.String(), c.cfg.ScrapeTokenBudget), sources
}

// SelectPricingPages picks up to limit links that look like pricing pages.
func SelectPricingPages(links []string, homepage string, limit int) []string {
	home := strings.TrimRight(homepage, "/")
	seen := map[string]bool{home: true}
	var out []string
	for _, l := range links {
		if len(out) >= limit {
			break
		}
		norm := strings.TrimRight(l, "/")
		if seen[norm] {
			continue
		}
		lower := strings.ToLower(l)
		for _, hint := range pricingHints {
			if strings.Contains(lower, hint) {
				seen[norm] = true
				out = append(out, l)
				break
			}
		}
	}
	return out
}
