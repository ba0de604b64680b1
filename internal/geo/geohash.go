package geo

import (
	"fmt"
	"strings"

	"spectral/internal/services"
)

const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// MinPrecision and MaxPrecision bound the supported geohash lengths.
const (
	MinPrecision = 1
	MaxPrecision = 12
)

var alphabetIndex = func() map[byte]int {
	idx := make(map[byte]int, len(geohashAlphabet))
	for i := 0; i < len(geohashAlphabet); i++ {
		idx[geohashAlphabet[i]] = i
	}
	return idx
}()

// Point is a decoded geohash cell center.
type Point struct {
	Lat float64
	Lon float64
}

type bounds struct {
	minLat, maxLat float64
	minLon, maxLon float64
}

// EncodeGeohash encodes a coordinate into a base-32 geohash of the requested
// precision, interleaving bits with the longitude bit first.
func EncodeGeohash(lat, lon float64, precision int) (string, error) {
	if !ValidCoordinates(lat, lon) {
		return "", services.Wrap(services.ErrValidation, "geo", "encode", fmt.Sprintf("invalid coordinates (%v, %v)", lat, lon), nil)
	}
	if precision < MinPrecision || precision > MaxPrecision {
		return "", services.Wrap(services.ErrValidation, "geo", "encode", fmt.Sprintf("precision %d outside [%d, %d]", precision, MinPrecision, MaxPrecision), nil)
	}

	var builder strings.Builder
	builder.Grow(precision)

	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0
	bit, ch := 0, 0
	evenBit := true

	for builder.Len() < precision {
		if evenBit {
			mid := (minLon + maxLon) / 2
			if lon >= mid {
				ch = ch<<1 | 1
				minLon = mid
			} else {
				ch <<= 1
				maxLon = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				minLat = mid
			} else {
				ch <<= 1
				maxLat = mid
			}
		}
		evenBit = !evenBit
		bit++
		if bit == 5 {
			builder.WriteByte(geohashAlphabet[ch])
			bit = 0
			ch = 0
		}
	}
	return builder.String(), nil
}

// DecodeGeohash returns the center of the cell the hash describes.
func DecodeGeohash(hash string) (Point, error) {
	b, err := decodeBounds(hash)
	if err != nil {
		return Point{}, err
	}
	return Point{
		Lat: (b.minLat + b.maxLat) / 2,
		Lon: (b.minLon + b.maxLon) / 2,
	}, nil
}

func decodeBounds(hash string) (bounds, error) {
	if hash == "" {
		return bounds{}, services.Wrap(services.ErrValidation, "geo", "decode", "empty geohash", nil)
	}
	b := bounds{minLat: -90, maxLat: 90, minLon: -180, maxLon: 180}
	evenBit := true
	for i := 0; i < len(hash); i++ {
		ch, ok := alphabetIndex[hash[i]]
		if !ok {
			return bounds{}, services.Wrap(services.ErrValidation, "geo", "decode", fmt.Sprintf("invalid geohash character %q", hash[i]), nil)
		}
		for mask := 16; mask > 0; mask >>= 1 {
			set := ch&mask != 0
			if evenBit {
				mid := (b.minLon + b.maxLon) / 2
				if set {
					b.minLon = mid
				} else {
					b.maxLon = mid
				}
			} else {
				mid := (b.minLat + b.maxLat) / 2
				if set {
					b.minLat = mid
				} else {
					b.maxLat = mid
				}
			}
			evenBit = !evenBit
		}
	}
	return b, nil
}

// Neighbors returns the eight cells adjacent to the hash at the same
// precision. Cells beyond the poles are omitted; longitude wraps.
func Neighbors(hash string) ([]string, error) {
	b, err := decodeBounds(hash)
	if err != nil {
		return nil, err
	}
	centerLat := (b.minLat + b.maxLat) / 2
	centerLon := (b.minLon + b.maxLon) / 2
	dLat := b.maxLat - b.minLat
	dLon := b.maxLon - b.minLon

	neighbors := make([]string, 0, 8)
	for _, latOff := range []float64{-1, 0, 1} {
		for _, lonOff := range []float64{-1, 0, 1} {
			if latOff == 0 && lonOff == 0 {
				continue
			}
			lat := centerLat + latOff*dLat
			if lat < -90 || lat > 90 {
				continue
			}
			lon := wrapLongitude(centerLon + lonOff*dLon)
			neighbor, err := EncodeGeohash(lat, lon, len(hash))
			if err != nil {
				return nil, err
			}
			neighbors = append(neighbors, neighbor)
		}
	}
	return neighbors, nil
}

func wrapLongitude(lon float64) float64 {
	for lon < -180 {
		lon += 360
	}
	for lon > 180 {
		lon -= 360
	}
	return lon
}
