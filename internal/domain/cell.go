package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CellPrecision is the number of decimal digits kept per axis when binning.
// Four digits is roughly 11 m of latitude.
const CellPrecision = 4

// CellID identifies a spatial cell, formatted as "<lat>,<lon>" with exactly
// CellPrecision fraction digits per axis, e.g. "26.9124,75.7873".
type CellID string

// Bin maps a coordinate pair to its cell. Each axis is rounded half away from
// zero on its shortest decimal representation, once, and then formatted, so
// identical inputs always produce identical IDs.
func Bin(lat, lon float64) (CellID, error) {
	if !isFinite(lat) || !isFinite(lon) {
		return "", fmt.Errorf("bin (%v, %v): %w", lat, lon, ErrInvalidCoordinate)
	}
	return CellID(roundAxis(lat) + "," + roundAxis(lon)), nil
}

// ValidCoordinate reports whether both axes are finite.
func ValidCoordinate(lat, lon float64) bool {
	return isFinite(lat) && isFinite(lon)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// roundAxis rounds v to CellPrecision digits, half away from zero, working on
// decimal digits so binary representation error cannot shift a tie.
func roundAxis(v float64) string {
	neg := math.Signbit(v)
	s := strconv.FormatFloat(math.Abs(v), 'f', -1, 64)

	intPart, frac, _ := strings.Cut(s, ".")
	roundUp := len(frac) > CellPrecision && frac[CellPrecision] >= '5'
	if len(frac) > CellPrecision {
		frac = frac[:CellPrecision]
	}
	frac += strings.Repeat("0", CellPrecision-len(frac))

	digits := []byte(intPart + frac)
	if roundUp {
		digits = incrementDecimal(digits)
	}

	n := len(digits)
	out := string(digits[:n-CellPrecision]) + "." + string(digits[n-CellPrecision:])
	if neg && strings.Trim(string(digits), "0") != "" {
		out = "-" + out
	}
	return out
}

// incrementDecimal adds one to a string of ASCII decimal digits, growing it on
// carry out of the most significant digit.
func incrementDecimal(digits []byte) []byte {
	for i := len(digits) - 1; i >= 0; i-- {
		if digits[i] < '9' {
			digits[i]++
			return digits
		}
		digits[i] = '0'
	}
	return append([]byte{'1'}, digits...)
}
