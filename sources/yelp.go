package sources

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/types"
)

const yelpMaxResults = 50

type yelpBusiness struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
	ImageURL    string  `json:"image_url"`
	URL         string  `json:"url"`
	Price       string  `json:"price"`
	Coordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	Location struct {
		DisplayAddress []string `json:"display_address"`
	} `json:"location"`
	Categories []struct {
		Alias string `json:"alias"`
		Title string `json:"title"`
	} `json:"categories"`
}

type yelpSearchResponse struct {
	Businesses []yelpBusiness `json:"businesses"`
}

// Yelp searches venues with the Fusion business search API.
type Yelp struct {
	*client
	apiKey string
}

// NewYelp creates a Yelp client.
func NewYelp(cfg ServiceConfig, opts ...Option) *Yelp {
	return &Yelp{client: newClient(planner.SourceYelp, cfg, opts...), apiKey: cfg.APIKey}
}

// Name returns the source name.
func (y *Yelp) Name() string { return planner.SourceYelp }

// Search queries businesses matching term near location.
func (y *Yelp) Search(ctx context.Context, query, location string, limit int) ([]planner.Venue, error) {
	if y.apiKey == "" {
		return nil, types.NewError(types.ErrNotConfigured, "yelp api key is not set").WithSource(y.name)
	}
	if limit <= 0 || limit > yelpMaxResults {
		limit = yelpMaxResults
	}
	q := url.Values{}
	q.Set("term", query)
	q.Set("location", location)
	q.Set("limit", strconv.Itoa(limit))

	var resp yelpSearchResponse
	headers := map[string]string{"Authorization": "Bearer " + y.apiKey}
	if err := y.getJSON(ctx, "/v3/businesses/search", q, headers, &resp); err != nil {
		return nil, err
	}

	venues := make([]planner.Venue, 0, len(resp.Businesses))
	for _, b := range resp.Businesses {
		if b.ID == "" {
			continue
		}
		v := planner.Venue{
			VenueID:     "yelp_" + b.ID,
			Name:        b.Name,
			Address:     strings.Join(b.Location.DisplayAddress, ", "),
			Lat:         b.Coordinates.Latitude,
			Lng:         b.Coordinates.Longitude,
			Rating:      b.Rating,
			ReviewCount: b.ReviewCount,
			Website:     b.URL,
			Source:      planner.SourceYelp,
			PriceRange:  b.Price,
			YelpPrice:   b.Price,
		}
		if len(b.Categories) > 0 {
			v.Category = b.Categories[0].Alias
		}
		if b.ImageURL != "" {
			v.PhotoRefs = []string{b.ImageURL}
		}
		venues = append(venues, v)
	}
	return venues, nil
}
