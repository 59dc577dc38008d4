package qibla

import (
	"context"
	"errors"
	"fmt"
)

// LocationProvider supplies the device position once per request.
type LocationProvider interface {
	Locate(ctx context.Context) (GeoCoordinate, error)
}

// LocationFunc adapts a function to LocationProvider.
type LocationFunc func(ctx context.Context) (GeoCoordinate, error)

// Locate calls f.
func (f LocationFunc) Locate(ctx context.Context) (GeoCoordinate, error) {
	return f(ctx)
}

// StaticLocation is a position already reported by the client.
type StaticLocation GeoCoordinate

// Locate returns the coordinate unchanged.
func (s StaticLocation) Locate(ctx context.Context) (GeoCoordinate, error) {
	return GeoCoordinate(s), nil
}

// FirstLocation tries each provider in order and returns the first position
// obtained. A nil provider is skipped.
func FirstLocation(providers ...LocationProvider) LocationProvider {
	return LocationFunc(func(ctx context.Context) (GeoCoordinate, error) {
		var lastErr error
		for _, p := range providers {
			if p == nil {
				continue
			}
			coord, err := locate(ctx, p)
			if err == nil {
				return coord, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = ErrLocationUnavailable
		}
		return GeoCoordinate{}, lastErr
	})
}

// locate queries p and folds every failure into ErrLocationUnavailable.
func locate(ctx context.Context, p LocationProvider) (GeoCoordinate, error) {
	if p == nil {
		return GeoCoordinate{}, ErrLocationUnavailable
	}
	coord, err := p.Locate(ctx)
	if errors.Is(err, ErrLocationUnavailable) {
		return GeoCoordinate{}, err
	}
	if err != nil {
		return GeoCoordinate{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	if err := coord.Validate(); err != nil {
		return GeoCoordinate{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	return coord, nil
}
