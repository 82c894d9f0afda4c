package video

import (
	"regexp"
	"strconv"
	"strings"
)

var iso6709Pattern = regexp.MustCompile(`^([+-]\d+(?:\.\d+)?)([+-]\d+(?:\.\d+)?)(?:[+-]\d+(?:\.\d+)?)?(?:CRS[A-Za-z0-9_:]+)?/?$`)

// parseISO6709 decodes the point strings cameras write into "location" tags,
// e.g. "+37.7749-122.4194+010.000/". Degree, degree-minute, and
// degree-minute-second forms are accepted. A (0,0) fix is treated as absent
// since dashcams write it when they have no satellite lock.
func parseISO6709(value string) (GPSLocation, bool) {
	match := iso6709Pattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return GPSLocation{}, false
	}
	lat, ok := parseSexagesimal(match[1], 2)
	if !ok || lat < -90 || lat > 90 {
		return GPSLocation{}, false
	}
	lon, ok := parseSexagesimal(match[2], 3)
	if !ok || lon < -180 || lon > 180 {
		return GPSLocation{}, false
	}
	if lat == 0 && lon == 0 {
		return GPSLocation{}, false
	}
	return GPSLocation{Latitude: lat, Longitude: lon}, true
}

// parseSexagesimal reads a signed ISO 6709 component whose integer part has
// degWidth degree digits, optionally followed by two minute and two second digits.
func parseSexagesimal(component string, degWidth int) (float64, bool) {
	sign := 1.0
	if component[0] == '-' {
		sign = -1
	}
	body := component[1:]
	intPart, frac, _ := strings.Cut(body, ".")
	if frac != "" {
		frac = "." + frac
	}

	var degrees, minutes, seconds string
	switch n := len(intPart); {
	case n >= 1 && n <= degWidth:
		degrees = intPart + frac
	case n == degWidth+2:
		degrees, minutes = intPart[:degWidth], intPart[degWidth:]+frac
	case n == degWidth+4:
		degrees, minutes, seconds = intPart[:degWidth], intPart[degWidth:degWidth+2], intPart[degWidth+2:]+frac
	default:
		return 0, false
	}

	value, err := strconv.ParseFloat(degrees, 64)
	if err != nil {
		return 0, false
	}
	if minutes != "" {
		m, err := strconv.ParseFloat(minutes, 64)
		if err != nil || m >= 60 {
			return 0, false
		}
		value += m / 60
	}
	if seconds != "" {
		s, err := strconv.ParseFloat(seconds, 64)
		if err != nil || s >= 60 {
			return 0, false
		}
		value += s / 3600
	}
	return sign * value, true
}
