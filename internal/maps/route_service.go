// README: Google Maps Directions client used to estimate trip miles for per-mile driver pay.
package maps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"googlemaps.github.io/maps"
)

var metersPerMile = decimal.RequireFromString("1609.344")

var ErrNoRoute = errors.New("no route found")

type directionsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// RouteService estimates road distance between two addresses.
type RouteService struct {
	client directionsClient
	region string
}

// NewRouteService creates a RouteService with the given API key. requestsPerSecond <= 0 keeps the client default.
func NewRouteService(apiKey, region string, requestsPerSecond int) (*RouteService, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if requestsPerSecond > 0 {
		opts = append(opts, maps.WithRateLimit(requestsPerSecond))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, region: region}, nil
}

// EstimateMiles returns driving miles along the first suggested route, rounded to a tenth of a mile.
func (s *RouteService) EstimateMiles(ctx context.Context, origin, destination string) (decimal.Decimal, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        maps.TravelModeDriving,
		Units:       maps.UnitsImperial,
		Region:      s.region,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return decimal.Zero, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return decimal.Zero, ErrNoRoute
	}

	meters := 0
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
	}
	return decimal.NewFromInt(int64(meters)).Div(metersPerMile).Round(1), nil
}
