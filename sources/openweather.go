package sources

import (
	"context"
	"net/url"
	"strconv"

	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/types"
)

// severeWindSpeed is the wind speed in m/s above which conditions are severe.
const severeWindSpeed = 17.0

type openWeatherResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// OpenWeather reads current conditions from the OpenWeatherMap API.
type OpenWeather struct {
	*client
	apiKey string
}

// NewOpenWeather creates an OpenWeather client.
func NewOpenWeather(cfg ServiceConfig, opts ...Option) *OpenWeather {
	return &OpenWeather{client: newClient("openweather", cfg, opts...), apiKey: cfg.APIKey}
}

// Current returns the weather at point.
func (o *OpenWeather) Current(ctx context.Context, point planner.LatLng) (*planner.Weather, error) {
	if o.apiKey == "" {
		return nil, types.NewError(types.ErrNotConfigured, "openweather api key is not set").WithSource(o.name)
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(point.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(point.Lng, 'f', 6, 64))
	q.Set("appid", o.apiKey)
	q.Set("units", "metric")

	var resp openWeatherResponse
	if err := o.getJSON(ctx, "/data/2.5/weather", q, nil, &resp); err != nil {
		return nil, err
	}

	w := &planner.Weather{
		TempC:     resp.Main.Temp,
		WindSpeed: resp.Wind.Speed,
	}
	code := 0
	if len(resp.Weather) > 0 {
		w.Condition = resp.Weather[0].Main
		w.Description = resp.Weather[0].Description
		code = resp.Weather[0].ID
	}
	w.Severe = IsSevereWeather(code, resp.Wind.Speed)
	return w, nil
}

// IsSevereWeather classifies an OpenWeatherMap condition code and wind speed.
func IsSevereWeather(code int, windSpeed float64) bool {
	if windSpeed > severeWindSpeed {
		return true
	}
	switch {
	case code >= 200 && code < 300: // thunderstorm
		return true
	case code >= 502 && code <= 504, code == 522: // heavy rain
		return true
	case code == 602, code == 621, code == 622: // heavy snow
		return true
	case code == 781: // tornado
		return true
	}
	return false
}
