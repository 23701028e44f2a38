// Package sky implements the positional cross-match between target objects
// and survey footprints.
package sky

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidRadius     = errors.New("invalid match radius")
	ErrInvalidFootprint  = errors.New("invalid footprint")
)

const degToRad = math.Pi / 180

// Separation returns the great-circle distance between two equatorial
// positions, all values in degrees. It uses the Vincenty form, which stays
// accurate for both coincident and antipodal points.
func Separation(ra1, dec1, ra2, dec2 float64) float64 {
	l1, b1 := ra1*degToRad, dec1*degToRad
	l2, b2 := ra2*degToRad, dec2*degToRad

	sdl, cdl := math.Sincos(l2 - l1)
	sb1, cb1 := math.Sincos(b1)
	sb2, cb2 := math.Sincos(b2)

	num1 := cb2 * sdl
	num2 := cb1*sb2 - sb1*cb2*cdl
	denom := sb1*sb2 + cb1*cb2*cdl

	return math.Atan2(math.Hypot(num1, num2), denom) / degToRad
}

// ValidatePosition reports whether ra/dec is a finite position with RA in
// [0, 360) and Dec in [-90, 90].
func ValidatePosition(ra, dec float64) error {
	if math.IsNaN(ra) || math.IsInf(ra, 0) || ra < 0 || ra >= 360 {
		return fmt.Errorf("%w: ra=%v", ErrInvalidCoordinate, ra)
	}
	if math.IsNaN(dec) || math.IsInf(dec, 0) || dec < -90 || dec > 90 {
		return fmt.Errorf("%w: dec=%v", ErrInvalidCoordinate, dec)
	}
	return nil
}
