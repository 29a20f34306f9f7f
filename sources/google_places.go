package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/types"
)

const (
	googlePlacesFieldMask = "places.id,places.displayName,places.formattedAddress,places.location," +
		"places.rating,places.userRatingCount,places.photos,places.primaryType,places.websiteUri,places.priceLevel"
	googleMaxResults = 20
	googleMaxPhotos  = 3
)

var googlePriceLevels = map[string]string{
	"PRICE_LEVEL_INEXPENSIVE":    "$",
	"PRICE_LEVEL_MODERATE":       "$$",
	"PRICE_LEVEL_EXPENSIVE":      "$$$",
	"PRICE_LEVEL_VERY_EXPENSIVE": "$$$$",
}

type googleSearchRequest struct {
	TextQuery      string `json:"textQuery"`
	MaxResultCount int    `json:"maxResultCount"`
}

type googlePlace struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string `json:"formattedAddress"`
	Location         struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Rating          float64 `json:"rating"`
	UserRatingCount int     `json:"userRatingCount"`
	Photos          []struct {
		Name string `json:"name"`
	} `json:"photos"`
	PrimaryType string `json:"primaryType"`
	WebsiteURI  string `json:"websiteUri"`
	PriceLevel  string `json:"priceLevel"`
}

type googleSearchResponse struct {
	Places []googlePlace `json:"places"`
}

// GooglePlaces searches venues with the Places Text Search API.
type GooglePlaces struct {
	*client
	apiKey string
}

// NewGooglePlaces creates a Google Places client.
func NewGooglePlaces(cfg ServiceConfig, opts ...Option) *GooglePlaces {
	return &GooglePlaces{client: newClient(planner.SourceGooglePlaces, cfg, opts...), apiKey: cfg.APIKey}
}

// Name returns the source name.
func (g *GooglePlaces) Name() string { return planner.SourceGooglePlaces }

// Search runs a text search for query in location.
func (g *GooglePlaces) Search(ctx context.Context, query, location string, limit int) ([]planner.Venue, error) {
	if g.apiKey == "" {
		return nil, types.NewError(types.ErrNotConfigured, "google places api key is not set").WithSource(g.name)
	}
	if limit <= 0 || limit > googleMaxResults {
		limit = googleMaxResults
	}
	body := googleSearchRequest{
		TextQuery:      strings.TrimSpace(query + " " + location),
		MaxResultCount: limit,
	}
	headers := map[string]string{
		"X-Goog-Api-Key":   g.apiKey,
		"X-Goog-FieldMask": googlePlacesFieldMask,
	}

	var resp googleSearchResponse
	if err := g.postJSON(ctx, "/v1/places:searchText", headers, body, &resp); err != nil {
		return nil, err
	}

	venues := make([]planner.Venue, 0, len(resp.Places))
	for _, p := range resp.Places {
		if p.ID == "" {
			continue
		}
		venues = append(venues, g.toVenue(p))
	}
	return venues, nil
}

func (g *GooglePlaces) toVenue(p googlePlace) planner.Venue {
	var photos []string
	for _, ph := range p.Photos {
		if len(photos) == googleMaxPhotos {
			break
		}
		if ph.Name == "" {
			continue
		}
		photos = append(photos, g.photoURL(ph.Name))
	}
	price := googlePriceLevels[p.PriceLevel]
	return planner.Venue{
		VenueID:     "gp_" + p.ID,
		Name:        p.DisplayName.Text,
		Address:     p.FormattedAddress,
		Lat:         p.Location.Latitude,
		Lng:         p.Location.Longitude,
		Rating:      p.Rating,
		ReviewCount: p.UserRatingCount,
		Category:    p.PrimaryType,
		PhotoRefs:   photos,
		Website:     p.WebsiteURI,
		Source:      planner.SourceGooglePlaces,
		PriceRange:  price,
		GooglePrice: price,
	}
}

// photoURL builds a media URL for a photo resource name.
func (g *GooglePlaces) photoURL(name string) string {
	q := url.Values{}
	q.Set("maxWidthPx", "800")
	q.Set("key", g.apiKey)
	return fmt.Sprintf("%s/v1/%s/media?%s", g.baseURL, name, q.Encode())
}
