package domain

import "errors"

// Errors a PlacesProvider implementation reports. Callers match them with errors.Is.
var (
	ErrProviderUnavailable = errors.New("places provider unavailable")
	ErrDecodeFailure       = errors.New("places provider response malformed")
	ErrDistanceUnknown     = errors.New("distance unknown")
	ErrPhotoUnavailable    = errors.New("photo unavailable")
	ErrPlaceNotFound       = errors.New("place not found")
	ErrInvalidCoordinate   = errors.New("invalid coordinate")
)
