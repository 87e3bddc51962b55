// Package googleplaces implements the places provider on top of the Google Maps
// Places, Distance Matrix and Place Photo web services.
package googleplaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"googlemaps.github.io/maps"

	"fitspot/placesearch/internal/domain"
)

const (
	maxPhotoBytes  = 8 * 1024 * 1024
	defaultTimeout = 10 * time.Second
)

type Config struct {
	APIKey   string
	BaseURL  string
	Language string
	Region   string
	Client   *http.Client
}

type Provider struct {
	client   *maps.Client
	language string
	region   string
}

func NewProvider(cfg Config) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("google places api key is required")
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	options := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(httpClient),
	}
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		options = append(options, maps.WithBaseURL(baseURL))
	}
	client, err := maps.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("google places client: %w", err)
	}
	return &Provider{
		client:   client,
		language: strings.TrimSpace(cfg.Language),
		region:   strings.TrimSpace(cfg.Region),
	}, nil
}

func (p *Provider) Name() string {
	return "google"
}

func (p *Provider) TextSearch(ctx context.Context, query domain.TextQuery) ([]domain.Place, error) {
	request := &maps.TextSearchRequest{
		Query:    strings.TrimSpace(query.Query),
		Type:     maps.PlaceType(query.Type),
		Language: p.language,
		Region:   p.region,
	}
	response, err := p.client.TextSearch(ctx, request)
	if err != nil {
		return nil, classifyError("textsearch", err)
	}
	return toPlaces(response.Results), nil
}

func (p *Provider) NearbySearch(ctx context.Context, query domain.NearbyQuery) ([]domain.Place, error) {
	request := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: query.Center.Lat, Lng: query.Center.Lng},
		Radius:   uint(query.RadiusMeters),
		Keyword:  strings.TrimSpace(query.Keyword),
		Type:     maps.PlaceType(query.Type),
		Language: p.language,
	}
	response, err := p.client.NearbySearch(ctx, request)
	if err != nil {
		return nil, classifyError("nearbysearch", err)
	}
	return toPlaces(response.Results), nil
}

func (p *Provider) Details(ctx context.Context, placeID string, fields []string) (domain.Place, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return domain.Place{}, domain.ErrPlaceNotFound
	}
	request := &maps.PlaceDetailsRequest{
		PlaceID:  placeID,
		Language: p.language,
		Region:   p.region,
	}
	for _, field := range fields {
		request.Fields = append(request.Fields, maps.PlaceDetailsFieldMask(field))
	}
	result, err := p.client.PlaceDetails(ctx, request)
	if err != nil {
		return domain.Place{}, classifyError("details", err)
	}

	place := domain.Place{
		ID:               result.PlaceID,
		Name:             result.Name,
		Address:          result.FormattedAddress,
		Location:         domain.Coordinate{Lat: result.Geometry.Location.Lat, Lng: result.Geometry.Location.Lng},
		Types:            append([]string(nil), result.Types...),
		Rating:           float64(result.Rating),
		UserRatingsTotal: result.UserRatingsTotal,
		Photos:           toPhotoRefs(result.Photos),
		Phone:            result.FormattedPhoneNumber,
		Website:          result.Website,
		Reviews:          toReviews(result.Reviews),
	}
	if place.ID == "" {
		place.ID = placeID
	}
	if result.OpeningHours != nil {
		place.OpeningHours = append([]string(nil), result.OpeningHours.WeekdayText...)
		place.OpenNow = result.OpeningHours.OpenNow
	}
	return place, nil
}

// Distance asks the distance matrix for a single origin and destination pair.
// Any element status other than OK is reported as ErrDistanceUnknown.
func (p *Provider) Distance(ctx context.Context, origin, destination domain.Coordinate, mode domain.TravelMode) (domain.Distance, error) {
	request := &maps.DistanceMatrixRequest{
		Origins:      []string{formatLatLng(origin)},
		Destinations: []string{formatLatLng(destination)},
		Mode:         travelMode(mode),
		Language:     p.language,
	}
	response, err := p.client.DistanceMatrix(ctx, request)
	if err != nil {
		return domain.Distance{}, classifyError("distance", err)
	}
	if len(response.Rows) == 0 || len(response.Rows[0].Elements) == 0 {
		return domain.Distance{}, domain.ErrDistanceUnknown
	}
	element := response.Rows[0].Elements[0]
	if element == nil || element.Status != "OK" {
		return domain.Distance{}, domain.ErrDistanceUnknown
	}
	return domain.Distance{
		Text:   element.Distance.HumanReadable,
		Meters: element.Distance.Meters,
	}, nil
}

func (p *Provider) Autocomplete(ctx context.Context, input string, bias *domain.GeoBias) ([]string, error) {
	request := &maps.PlaceAutocompleteRequest{
		Input:    strings.TrimSpace(input),
		Language: p.language,
	}
	if bias != nil && bias.Center != nil {
		request.Location = &maps.LatLng{Lat: bias.Center.Lat, Lng: bias.Center.Lng}
		request.Radius = uint(bias.RadiusMeters)
	}
	response, err := p.client.PlaceAutocomplete(ctx, request)
	if err != nil {
		return nil, classifyError("autocomplete", err)
	}
	suggestions := make([]string, 0, len(response.Predictions))
	for _, prediction := range response.Predictions {
		if prediction.Description != "" {
			suggestions = append(suggestions, prediction.Description)
		}
	}
	return suggestions, nil
}

func (p *Provider) Photo(ctx context.Context, reference string, maxWidth int) (domain.Photo, error) {
	response, err := p.client.PlacePhoto(ctx, &maps.PlacePhotoRequest{
		PhotoReference: reference,
		MaxWidth:       uint(maxWidth),
	})
	if err != nil {
		return domain.Photo{}, fmt.Errorf("%w: %s", domain.ErrPhotoUnavailable, err.Error())
	}
	defer response.Data.Close()

	data, err := io.ReadAll(io.LimitReader(response.Data, maxPhotoBytes))
	if err != nil {
		return domain.Photo{}, fmt.Errorf("%w: %s", domain.ErrPhotoUnavailable, err.Error())
	}
	if len(data) == 0 || !strings.HasPrefix(response.ContentType, "image/") {
		return domain.Photo{}, domain.ErrPhotoUnavailable
	}
	return domain.Photo{ContentType: response.ContentType, Data: data}, nil
}

func toPlaces(results []maps.PlacesSearchResult) []domain.Place {
	places := make([]domain.Place, 0, len(results))
	for _, result := range results {
		if strings.TrimSpace(result.PlaceID) == "" {
			continue
		}
		address := result.FormattedAddress
		if address == "" {
			address = result.Vicinity
		}
		place := domain.Place{
			ID:               result.PlaceID,
			Name:             result.Name,
			Address:          address,
			Location:         domain.Coordinate{Lat: result.Geometry.Location.Lat, Lng: result.Geometry.Location.Lng},
			Types:            append([]string(nil), result.Types...),
			Rating:           float64(result.Rating),
			UserRatingsTotal: result.UserRatingsTotal,
			Photos:           toPhotoRefs(result.Photos),
		}
		if result.OpeningHours != nil {
			place.OpenNow = result.OpeningHours.OpenNow
		}
		places = append(places, place)
	}
	return places
}

func toPhotoRefs(photos []maps.Photo) []domain.PhotoRef {
	if len(photos) == 0 {
		return nil
	}
	refs := make([]domain.PhotoRef, 0, len(photos))
	for _, photo := range photos {
		if photo.PhotoReference == "" {
			continue
		}
		refs = append(refs, domain.PhotoRef{
			Reference: photo.PhotoReference,
			Width:     photo.Width,
			Height:    photo.Height,
		})
	}
	return refs
}

func toReviews(reviews []maps.PlaceReview) []domain.Review {
	if len(reviews) == 0 {
		return nil
	}
	out := make([]domain.Review, 0, len(reviews))
	for _, review := range reviews {
		item := domain.Review{
			Author: review.AuthorName,
			Text:   review.Text,
			Time:   int64(review.Time),
		}
		if review.Rating > 0 {
			rating := review.Rating
			item.Rating = &rating
		}
		out = append(out, item)
	}
	return out
}

func formatLatLng(c domain.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

func travelMode(mode domain.TravelMode) maps.Mode {
	switch mode {
	case domain.TravelModeWalking:
		return maps.TravelModeWalking
	case domain.TravelModeBicycling:
		return maps.TravelModeBicycling
	case domain.TravelModeTransit:
		return maps.TravelModeTransit
	default:
		return maps.TravelModeDriving
	}
}

// classifyError maps client failures onto the domain error kinds. The client
// reports non-OK statuses as "maps: STATUS - message".
func classifyError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, operation, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: %s", domain.ErrDecodeFailure, operation, err.Error())
	}

	message := err.Error()
	switch {
	case strings.Contains(message, "NOT_FOUND"):
		return fmt.Errorf("%w: %s", domain.ErrPlaceNotFound, message)
	case strings.Contains(message, "INVALID_REQUEST"):
		return fmt.Errorf("%w: %s: %s", domain.ErrDecodeFailure, operation, message)
	default:
		return fmt.Errorf("%w: %s: %s", domain.ErrProviderUnavailable, operation, message)
	}
}
