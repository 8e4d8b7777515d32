package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/saviobatista/seatime-logger/internal/types"
)

// MovingSpeedKnots is the speed above which a single poll counts as moving
const MovingSpeedKnots = 2.0

// Coordinate bounds. AIS reports 91 and 181 for "not available".
const (
	maxLatitude  = 90.0
	maxLongitude = 180.0
)

// unixMillisThreshold separates Unix seconds from Unix milliseconds
const unixMillisThreshold = 100_000_000_000

// nestedContainers are probed, in order, after the flat object
var nestedContainers = []string{"vessel", "position", "navigation", "voyage"}

// Field names, canonical first
var (
	fieldName        = []string{"name", "vessel_name", "shipname"}
	fieldMMSI        = []string{"mmsi"}
	fieldIMO         = []string{"imo"}
	fieldSpeed       = []string{"speed", "sog", "speed_knots"}
	fieldLatitude    = []string{"latitude", "lat"}
	fieldLongitude   = []string{"longitude", "lon", "lng"}
	fieldCourse      = []string{"course", "cog"}
	fieldHeading     = []string{"heading", "hdg"}
	fieldStatus      = []string{"status", "navigation_status", "nav_status"}
	fieldDestination = []string{"destination"}
	fieldETA         = []string{"eta"}
	fieldCallsign    = []string{"callsign", "call_sign"}
	fieldShipType    = []string{"ship_type", "vessel_type"}
	fieldFlag        = []string{"flag", "country"}
	fieldReceived    = []string{"received"}
	fieldUnixTime    = []string{"timestamp", "last_position_update"}
)

// ErrEmptyResponse is returned when the provider body holds no vessel object
var ErrEmptyResponse = errors.New("empty vessel response")

// ParseVesselResponse normalizes a provider response body into a vessel position.
// now is used when the response carries no usable timestamp.
func ParseVesselResponse(body []byte, now time.Time) (*types.VesselPosition, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("invalid vessel response: %w", err)
	}

	obj := unwrapEnvelope(raw)
	if len(obj) == 0 {
		return nil, ErrEmptyResponse
	}

	return Normalize(obj, now), nil
}

// unwrapEnvelope strips a {"status": ..., "data": {...}} wrapper when present
func unwrapEnvelope(raw map[string]interface{}) map[string]interface{} {
	if data, ok := raw["data"].(map[string]interface{}); ok {
		return data
	}
	// Some endpoints return a single-element array under data
	if list, ok := raw["data"].([]interface{}); ok {
		if len(list) == 0 {
			return nil
		}
		if first, ok := list[0].(map[string]interface{}); ok {
			return first
		}
	}
	return raw
}

// Normalize maps a decoded provider object onto a vessel position
func Normalize(obj map[string]interface{}, now time.Time) *types.VesselPosition {
	pos := &types.VesselPosition{
		Name:        lookupString(obj, fieldName),
		MMSI:        lookupString(obj, fieldMMSI),
		IMO:         lookupString(obj, fieldIMO),
		SpeedKnots:  lookupFloat(obj, fieldSpeed),
		Latitude:    lookupCoordinate(obj, fieldLatitude, maxLatitude),
		Longitude:   lookupCoordinate(obj, fieldLongitude, maxLongitude),
		Course:      lookupFloat(obj, fieldCourse),
		Heading:     lookupFloat(obj, fieldHeading),
		Status:      lookupString(obj, fieldStatus),
		Destination: lookupString(obj, fieldDestination),
		ETA:         lookupString(obj, fieldETA),
		Callsign:    lookupString(obj, fieldCallsign),
		ShipType:    lookupString(obj, fieldShipType),
		Flag:        lookupString(obj, fieldFlag),
	}

	pos.Timestamp, pos.TimestampSource = resolveTimestamp(obj, now)
	pos.IsMoving = pos.SpeedKnots != nil && *pos.SpeedKnots > MovingSpeedKnots

	return pos
}

func resolveTimestamp(obj map[string]interface{}, now time.Time) (time.Time, types.TimestampSource) {
	if received := lookupString(obj, fieldReceived); received != "" {
		if ts, err := parseISO8601(received); err == nil {
			return ts, types.TimestampReceived
		}
	}

	if unix := lookupFloat(obj, fieldUnixTime); unix != nil && *unix > 0 {
		return FromUnix(*unix), types.TimestampUnix
	}

	return now, types.TimestampFallback
}

// FromUnix converts a provider Unix time, in seconds or milliseconds, to a time
func FromUnix(v float64) time.Time {
	if v < unixMillisThreshold {
		return time.Unix(int64(v), 0).UTC()
	}
	return time.UnixMilli(int64(v)).UTC()
}

func parseISO8601(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// lookup returns the first present, non-null value for names, probing the flat
// object before each nested container and canonical names before aliases.
func lookup(obj map[string]interface{}, names []string) (interface{}, bool) {
	if v, ok := firstPresent(obj, names); ok {
		return v, true
	}
	for _, container := range nestedContainers {
		nested, ok := obj[container].(map[string]interface{})
		if !ok {
			continue
		}
		if v, ok := firstPresent(nested, names); ok {
			return v, true
		}
	}
	return nil, false
}

func firstPresent(obj map[string]interface{}, names []string) (interface{}, bool) {
	for _, name := range names {
		v, ok := obj[name]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func lookupString(obj map[string]interface{}, names []string) string {
	v, ok := lookup(obj, names)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func lookupFloat(obj map[string]interface{}, names []string) *float64 {
	v, ok := lookup(obj, names)
	if !ok {
		return nil
	}
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	// ParseFloat accepts "NaN" and "Inf"
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// lookupCoordinate is lookupFloat with out-of-range values treated as missing
func lookupCoordinate(obj map[string]interface{}, names []string, limit float64) *float64 {
	f := lookupFloat(obj, names)
	if f == nil || math.Abs(*f) > limit {
		return nil
	}
	return f
}
