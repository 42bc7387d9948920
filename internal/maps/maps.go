// Package maps proxies the external geocoding provider for free-text pickup
// and destination input. The routing itself is not ours; we only consume the
// provider's contract.
package maps

import (
	"context"
	"fmt"

	gmaps "googlemaps.github.io/maps"

	"github.com/example/ride-dispatch/internal/models"
)

// Geocoder is what the HTTP layer consumes; fakes implement it in tests.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Coord, string, error)
	Suggest(ctx context.Context, input string) ([]string, error)
}

type Service struct {
	client *gmaps.Client
}

func NewService(apiKey string) (*Service, error) {
	client, err := gmaps.NewClient(gmaps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &Service{client: client}, nil
}

// Geocode resolves a free-text address to a coordinate and the provider's
// formatted address.
func (s *Service) Geocode(ctx context.Context, address string) (models.Coord, string, error) {
	if address == "" {
		return models.Coord{}, "", fmt.Errorf("geocode: empty address: %w", models.ErrValidation)
	}
	results, err := s.client.Geocode(ctx, &gmaps.GeocodingRequest{Address: address})
	if err != nil {
		return models.Coord{}, "", fmt.Errorf("geocode %q: %w", address, err)
	}
	if len(results) == 0 {
		return models.Coord{}, "", fmt.Errorf("geocode %q: %w", address, models.ErrNotFound)
	}
	loc := results[0].Geometry.Location
	return models.Coord{Lat: loc.Lat, Lon: loc.Lng}, results[0].FormattedAddress, nil
}

// Suggest returns address completions for a partial input.
func (s *Service) Suggest(ctx context.Context, input string) ([]string, error) {
	if input == "" {
		return nil, fmt.Errorf("suggest: empty input: %w", models.ErrValidation)
	}
	resp, err := s.client.PlaceAutocomplete(ctx, &gmaps.PlaceAutocompleteRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("suggest %q: %w", input, err)
	}
	out := make([]string, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		out = append(out, p.Description)
	}
	return out, nil
}
