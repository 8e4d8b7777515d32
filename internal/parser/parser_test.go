package parser

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/saviobatista/seatime-logger/internal/types"
)

func TestParseVesselResponse(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantName   string
		wantMMSI   string
		wantLat    *float64
		wantLon    *float64
		wantSpeed  *float64
		wantMoving bool
		wantSource types.TimestampSource
		wantTime   time.Time
	}{
		{
			name:       "flat canonical fields",
			body:       `{"name":"SEA BREEZE","mmsi":235000001,"latitude":50.1,"longitude":-1.2,"speed":12.5,"received":"2024-06-01T10:00:00Z"}`,
			wantName:   "SEA BREEZE",
			wantMMSI:   "235000001",
			wantLat:    ptr(50.1),
			wantLon:    ptr(-1.2),
			wantSpeed:  ptr(12.5),
			wantMoving: true,
			wantSource: types.TimestampReceived,
			wantTime:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:       "envelope with aliases and string numbers",
			body:       `{"status":"success","data":{"vessel_name":"TUG ONE","mmsi":"235000002","lat":"50.5","lon":"-1.5","sog":"1.5","timestamp":1717236000}}`,
			wantName:   "TUG ONE",
			wantMMSI:   "235000002",
			wantLat:    ptr(50.5),
			wantLon:    ptr(-1.5),
			wantSpeed:  ptr(1.5),
			wantMoving: false,
			wantSource: types.TimestampUnix,
			wantTime:   time.Unix(1717236000, 0).UTC(),
		},
		{
			name:       "nested containers",
			body:       `{"vessel":{"name":"FERRY","mmsi":"235000003"},"position":{"lat":51.0,"lng":1.0},"navigation":{"speed":2.0},"last_position_update":1717236000000}`,
			wantName:   "FERRY",
			wantMMSI:   "235000003",
			wantLat:    ptr(51.0),
			wantLon:    ptr(1.0),
			wantSpeed:  ptr(2.0),
			wantMoving: false,
			wantSource: types.TimestampUnix,
			wantTime:   time.UnixMilli(1717236000000).UTC(),
		},
		{
			name:       "missing position falls back to wall clock",
			body:       `{"name":"GHOST","mmsi":"235000004"}`,
			wantName:   "GHOST",
			wantMMSI:   "235000004",
			wantSource: types.TimestampFallback,
			wantTime:   now,
		},
		{
			name:       "invalid received falls through to unix time",
			body:       `{"mmsi":"235000005","received":"yesterday","timestamp":"1717236000"}`,
			wantMMSI:   "235000005",
			wantSource: types.TimestampUnix,
			wantTime:   time.Unix(1717236000, 0).UTC(),
		},
		{
			name:    "malformed json",
			body:    `{"name":`,
			wantErr: true,
		},
		{
			name:    "empty data array",
			body:    `{"status":"success","data":[]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := ParseVesselResponse([]byte(tt.body), now)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVesselResponse() error = %v", err)
			}

			if pos.Name != tt.wantName {
				t.Errorf("Expected name %q, got %q", tt.wantName, pos.Name)
			}
			if pos.MMSI != tt.wantMMSI {
				t.Errorf("Expected MMSI %q, got %q", tt.wantMMSI, pos.MMSI)
			}
			assertFloat(t, "latitude", tt.wantLat, pos.Latitude)
			assertFloat(t, "longitude", tt.wantLon, pos.Longitude)
			assertFloat(t, "speed", tt.wantSpeed, pos.SpeedKnots)
			if pos.IsMoving != tt.wantMoving {
				t.Errorf("Expected IsMoving %v, got %v", tt.wantMoving, pos.IsMoving)
			}
			if pos.TimestampSource != tt.wantSource {
				t.Errorf("Expected timestamp source %s, got %s", tt.wantSource, pos.TimestampSource)
			}
			if !pos.Timestamp.Equal(tt.wantTime) {
				t.Errorf("Expected timestamp %v, got %v", tt.wantTime, pos.Timestamp)
			}
		})
	}
}

func TestParseVesselResponse_EmptyObject(t *testing.T) {
	_, err := ParseVesselResponse([]byte(`{}`), time.Now())
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Expected ErrEmptyResponse, got %v", err)
	}
}

func TestNormalize_NonFiniteAndOutOfRange(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantLat   *float64
		wantLon   *float64
		wantSpeed *float64
	}{
		{
			name:      "NaN latitude",
			body:      `{"mmsi":"235000001","lat":"NaN","lon":"-1.0","speed":"0.1"}`,
			wantLon:   ptr(-1.0),
			wantSpeed: ptr(0.1),
		},
		{
			name:    "infinite speed and longitude",
			body:    `{"mmsi":"235000001","lat":"50.0","lon":"-Infinity","speed":"Inf"}`,
			wantLat: ptr(50.0),
		},
		{
			name:      "not available markers",
			body:      `{"mmsi":"235000001","latitude":91,"longitude":181,"speed":3.5}`,
			wantSpeed: ptr(3.5),
		},
		{
			name:    "bounds are inclusive",
			body:    `{"mmsi":"235000001","latitude":-90,"longitude":180}`,
			wantLat: ptr(-90.0),
			wantLon: ptr(180.0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := ParseVesselResponse([]byte(tt.body), time.Now())
			if err != nil {
				t.Fatalf("ParseVesselResponse() error = %v", err)
			}
			assertFloat(t, "latitude", tt.wantLat, pos.Latitude)
			assertFloat(t, "longitude", tt.wantLon, pos.Longitude)
			assertFloat(t, "speed", tt.wantSpeed, pos.SpeedKnots)
			if pos.SpeedKnots == nil && pos.IsMoving {
				t.Error("Expected missing speed not to count as moving")
			}
			if _, err := json.Marshal(pos); err != nil {
				t.Errorf("Expected position to encode, got %v", err)
			}
		})
	}
}

func TestNormalize_LookupPriority(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		obj     map[string]interface{}
		wantLat float64
	}{
		{
			name:    "flat wins over nested",
			obj:     map[string]interface{}{"lat": 1.0, "position": map[string]interface{}{"latitude": 2.0}},
			wantLat: 1.0,
		},
		{
			name:    "canonical wins over alias",
			obj:     map[string]interface{}{"lat": 1.0, "latitude": 3.0},
			wantLat: 3.0,
		},
		{
			name: "earlier container wins",
			obj: map[string]interface{}{
				"voyage":   map[string]interface{}{"latitude": 4.0},
				"vessel":   map[string]interface{}{"lat": 5.0},
				"position": map[string]interface{}{"latitude": 6.0},
			},
			wantLat: 5.0,
		},
		{
			name:    "null flat value falls through to nested",
			obj:     map[string]interface{}{"latitude": nil, "navigation": map[string]interface{}{"lat": 7.0}},
			wantLat: 7.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := Normalize(tt.obj, now)
			if pos.Latitude == nil {
				t.Fatal("Expected latitude to be set")
			}
			if *pos.Latitude != tt.wantLat {
				t.Errorf("Expected latitude %v, got %v", tt.wantLat, *pos.Latitude)
			}
		})
	}
}

func TestNormalize_ExtendedFields(t *testing.T) {
	obj := map[string]interface{}{
		"imo":         9876543.0,
		"vessel_type": "Cargo",
		"country":     "GB",
		"call_sign":   "MABC1",

		"voyage": map[string]interface{}{
			"destination": "SOUTHAMPTON",
			"eta":         "2024-06-02T08:00:00Z",
		},
		"navigation": map[string]interface{}{
			"cog":        181.5,
			"hdg":        180.0,
			"nav_status": "Under way using engine",
		},
	}

	pos := Normalize(obj, time.Now())

	if pos.IMO != "9876543" {
		t.Errorf("Expected IMO 9876543, got %s", pos.IMO)
	}
	if pos.ShipType != "Cargo" {
		t.Errorf("Expected ship type Cargo, got %s", pos.ShipType)
	}
	if pos.Flag != "GB" {
		t.Errorf("Expected flag GB, got %s", pos.Flag)
	}
	if pos.Callsign != "MABC1" {
		t.Errorf("Expected callsign MABC1, got %s", pos.Callsign)
	}
	if pos.Destination != "SOUTHAMPTON" {
		t.Errorf("Expected destination SOUTHAMPTON, got %s", pos.Destination)
	}
	if pos.ETA != "2024-06-02T08:00:00Z" {
		t.Errorf("Expected ETA, got %s", pos.ETA)
	}
	assertFloat(t, "course", ptr(181.5), pos.Course)
	assertFloat(t, "heading", ptr(180.0), pos.Heading)
	if pos.Status != "Under way using engine" {
		t.Errorf("Expected nav status, got %s", pos.Status)
	}
}

func TestFromUnix(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  time.Time
	}{
		{name: "seconds", value: 1717236000, want: time.Unix(1717236000, 0).UTC()},
		{name: "milliseconds", value: 1717236000123, want: time.UnixMilli(1717236000123).UTC()},
		{name: "just below threshold is seconds", value: 99_999_999_999, want: time.Unix(99_999_999_999, 0).UTC()},
		{name: "threshold is milliseconds", value: 100_000_000_000, want: time.UnixMilli(100_000_000_000).UTC()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromUnix(tt.value); !got.Equal(tt.want) {
				t.Errorf("FromUnix(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func ptr(v float64) *float64 {
	return &v
}

func assertFloat(t *testing.T, field string, want, got *float64) {
	t.Helper()
	switch {
	case want == nil && got == nil:
	case want == nil:
		t.Errorf("Expected %s to be nil, got %v", field, *got)
	case got == nil:
		t.Errorf("Expected %s %v, got nil", field, *want)
	case *want != *got:
		t.Errorf("Expected %s %v, got %v", field, *want, *got)
	}
}
