package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// Vitals is the P2 body sensor reading.
type Vitals struct {
	TemperatureDeci int16 // °C × 10
	HeartRate       uint8
}

// Encode returns the vitals notification frame.
func (v Vitals) Encode() []byte {
	hi, lo := PutUint16(uint16(v.TemperatureDeci))
	return MustState(TypeTelemetry, SubVitals, hi, lo, v.HeartRate)
}

// Activity is the P2 pedometer and battery reading.
type Activity struct {
	Steps   uint16
	Battery uint8 // percent
}

// Encode returns the activity notification frame.
func (a Activity) Encode() []byte {
	hi, lo := PutUint16(a.Steps)
	return MustState(TypeTelemetry, SubActivity, hi, lo, a.Battery)
}

// Position is the P2 GPS fix in hundredths of a degree.
type Position struct {
	LatitudeCenti  int16
	LongitudeCenti int16
}

// Encode returns the GPS notification frame.
func (p Position) Encode() []byte {
	latHi, latLo := PutUint16(uint16(p.LatitudeCenti))
	lonHi, lonLo := PutUint16(uint16(p.LongitudeCenti))
	return MustState(TypeTelemetry, SubPosition, latHi, latLo, lonHi, lonLo)
}

// EncodeTemperature returns the P1 temperature reading, sent as the first
// GET_TELEMETRY ack.
func EncodeTemperature(deci int16) []byte {
	hi, lo := PutUint16(uint16(deci))
	return EncodeFixed(CmdGetTelemetry, SubTemperature, hi, lo)
}

// EncodeHumidity returns the P1 humidity reading, sent as the second
// GET_TELEMETRY ack.
func EncodeHumidity(deci uint16) []byte {
	hi, lo := PutUint16(deci)
	return EncodeFixed(CmdGetTelemetry, SubHumidity, hi, lo)
}

// Reading kinds.
const (
	KindTemperature = "temperature"
	KindHumidity    = "humidity"
	KindVitals      = "vitals"
	KindActivity    = "activity"
	KindPosition    = "position"
)

// Reading is a decoded telemetry notification in engineering units.
type Reading struct {
	Kind   string             `json:"kind"`
	Values map[string]float64 `json:"values"`
}

func (r Reading) String() string {
	keys := make([]string, 0, len(r.Values))
	for k := range r.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, r.Values[k]))
	}
	return r.Kind + " " + strings.Join(parts, " ")
}

// DecodeTelemetry decodes a P1 GET_TELEMETRY ack or a P2 telemetry frame.
// Any other frame yields ErrUnknownTelemetry.
func DecodeTelemetry(b []byte) (Reading, error) {
	if len(b) < 2 {
		return Reading{}, ErrUnknownTelemetry
	}
	need := func(n int) error {
		if len(b) < n {
			return fmt.Errorf("%w: telemetry %02X/%02X has %d bytes, need %d", ErrFrameTooShort, b[0], b[1], len(b), n)
		}
		return nil
	}
	switch {
	case b[0] == CmdGetTelemetry && b[1] == SubTemperature:
		if err := need(4); err != nil {
			return Reading{}, err
		}
		t := int16(Uint16(b[2], b[3]))
		return Reading{Kind: KindTemperature, Values: map[string]float64{
			"temperature_c": float64(t) / 10,
		}}, nil
	case b[0] == CmdGetTelemetry && b[1] == SubHumidity:
		if err := need(4); err != nil {
			return Reading{}, err
		}
		return Reading{Kind: KindHumidity, Values: map[string]float64{
			"humidity_pct": float64(Uint16(b[2], b[3])) / 10,
		}}, nil
	case b[0] == TypeTelemetry && b[1] == SubVitals:
		if err := need(5); err != nil {
			return Reading{}, err
		}
		t := int16(Uint16(b[2], b[3]))
		return Reading{Kind: KindVitals, Values: map[string]float64{
			"temperature_c": float64(t) / 10,
			"heart_rate":    float64(b[4]),
		}}, nil
	case b[0] == TypeTelemetry && b[1] == SubActivity:
		if err := need(5); err != nil {
			return Reading{}, err
		}
		return Reading{Kind: KindActivity, Values: map[string]float64{
			"steps":       float64(Uint16(b[2], b[3])),
			"battery_pct": float64(b[4]),
		}}, nil
	case b[0] == TypeTelemetry && b[1] == SubPosition:
		if err := need(6); err != nil {
			return Reading{}, err
		}
		lat := int16(Uint16(b[2], b[3]))
		lon := int16(Uint16(b[4], b[5]))
		return Reading{Kind: KindPosition, Values: map[string]float64{
			"latitude":  float64(lat) / 100,
			"longitude": float64(lon) / 100,
		}}, nil
	}
	return Reading{}, ErrUnknownTelemetry
}
