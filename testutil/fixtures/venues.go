// Package fixtures 提供测试用的场所与模型回复样例。
package fixtures

import "github.com/BaSui01/pathfinder/planner"

// TorontoCafes 三家多伦多咖啡馆，其中两家来自 Google、一家来自 Yelp
func TorontoCafes() []planner.Venue {
	return []planner.Venue{
		{
			VenueID: "gp_balzac", Name: "Balzac's Coffee", Address: "1 Trinity St",
			Lat: 43.6505, Lng: -79.3590, Rating: 4.5, ReviewCount: 1200,
			Category: "cafe", Source: planner.SourceGooglePlaces, PriceRange: "$$",
			Website: "https://balzacs.example",
		},
		{
			VenueID: "gp_pilot", Name: "Pilot Coffee", Address: "50 Wagstaff Dr",
			Lat: 43.6460, Lng: -79.3950, Rating: 4.4, ReviewCount: 800,
			Category: "cafe", Source: planner.SourceGooglePlaces,
		},
		{
			VenueID: "yelp_sam", Name: "Sam James", Address: "297 Harbord St",
			Lat: 43.6600, Lng: -79.4000, Rating: 4.3, ReviewCount: 310,
			Category: "coffee", Source: planner.SourceYelp, PriceRange: "$",
		},
	}
}

// GoogleOnly 只保留 Google 来源的样例
func GoogleOnly(vs []planner.Venue) []planner.Venue {
	var out []planner.Venue
	for _, v := range vs {
		if v.Source == planner.SourceGooglePlaces {
			out = append(out, v)
		}
	}
	return out
}

// YelpOnly 只保留 Yelp 来源的样例
func YelpOnly(vs []planner.Venue) []planner.Venue {
	var out []planner.Venue
	for _, v := range vs {
		if v.Source == planner.SourceYelp {
			out = append(out, v)
		}
	}
	return out
}
