package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/types"
)

type mapboxDirectionsResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
	} `json:"routes"`
}

// Mapbox provides travel times and isochrones.
type Mapbox struct {
	*client
	token string
}

// NewMapbox creates a Mapbox client.
func NewMapbox(cfg ServiceConfig, opts ...Option) *Mapbox {
	return &Mapbox{client: newClient("mapbox", cfg, opts...), token: cfg.APIKey}
}

// mapboxProfile maps a travel mode to a Mapbox routing profile. Mapbox has no
// transit routing; transit is approximated by driving.
func mapboxProfile(mode planner.TravelMode) string {
	switch mode {
	case planner.ModeWalking:
		return "walking"
	case planner.ModeCycling:
		return "cycling"
	default:
		return "driving"
	}
}

func lngLat(p planner.LatLng) string {
	return strconv.FormatFloat(p.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
}

// TravelTime returns the fastest route estimate, or nil when no route exists.
func (m *Mapbox) TravelTime(ctx context.Context, origin, dest planner.LatLng, mode planner.TravelMode) (*planner.TravelEstimate, error) {
	if m.token == "" {
		return nil, types.NewError(types.ErrNotConfigured, "mapbox token is not set").WithSource(m.name)
	}
	path := fmt.Sprintf("/directions/v5/mapbox/%s/%s;%s", mapboxProfile(mode), lngLat(origin), lngLat(dest))
	q := url.Values{}
	q.Set("access_token", m.token)
	q.Set("overview", "false")

	var resp mapboxDirectionsResponse
	if err := m.getJSON(ctx, path, q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return nil, nil
	}
	return &planner.TravelEstimate{
		DurationSeconds: resp.Routes[0].Duration,
		DistanceMeters:  resp.Routes[0].Distance,
	}, nil
}

// Isochrone returns the GeoJSON polygon reachable from point within minutes.
func (m *Mapbox) Isochrone(ctx context.Context, point planner.LatLng, mode planner.TravelMode, minutes int) (json.RawMessage, error) {
	if m.token == "" {
		return nil, types.NewError(types.ErrNotConfigured, "mapbox token is not set").WithSource(m.name)
	}
	if minutes <= 0 {
		minutes = 30
	}
	path := fmt.Sprintf("/isochrone/v1/mapbox/%s/%s", mapboxProfile(mode), lngLat(point))
	q := url.Values{}
	q.Set("contours_minutes", strconv.Itoa(minutes))
	q.Set("polygons", "true")
	q.Set("access_token", m.token)

	var raw json.RawMessage
	if err := m.getJSON(ctx, path, q, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
