package geo

// RadiusToPrecision maps a search radius in kilometers to the geohash prefix
// length whose cell size best covers it. The result selects index scan
// granularity; it is never used as a hard inclusion filter.
func RadiusToPrecision(radiusKm float64) int {
	switch {
	case radiusKm > 630:
		return 1
	case radiusKm > 78:
		return 2
	case radiusKm > 20:
		return 3
	case radiusKm > 2.4:
		return 4
	case radiusKm > 0.61:
		return 5
	case radiusKm > 0.076:
		return 6
	default:
		return 7
	}
}
