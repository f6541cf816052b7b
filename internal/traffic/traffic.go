// Package traffic maps wall-clock time to a traffic tier and the tier to a
// nominal bus speed.
package traffic

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Tier int

// The zero Tier is deliberately not a valid tier.
const (
	Light Tier = iota + 1
	Moderate
	Heavy
)

// Tiers lists every valid tier from lightest to heaviest.
var Tiers = []Tier{Light, Moderate, Heavy}

func (t Tier) String() string {
	switch t {
	case Light:
		return "light"
	case Moderate:
		return "moderate"
	case Heavy:
		return "heavy"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

func (t Tier) Valid() bool { return t >= Light && t <= Heavy }

// MustValid panics when t is not one of Light, Moderate or Heavy. Classify is
// total, so reaching the panic means a tier was fabricated somewhere.
func (t Tier) MustValid() {
	if !t.Valid() {
		panic(fmt.Sprintf("traffic: unknown tier %d", int(t)))
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("traffic: unknown tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseTier accepts the tier names case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "light":
		return Light, nil
	case "moderate":
		return Moderate, nil
	case "heavy":
		return Heavy, nil
	}
	return 0, fmt.Errorf("traffic: unknown tier %q", s)
}

// Classify returns the tier for an hour of the day:
// 07-10 and 17-20 heavy, 06 and 11-16 moderate, everything else light.
func Classify(hour int) Tier {
	if hour < 0 || hour > 23 {
		panic(fmt.Sprintf("traffic: hour %d out of range", hour))
	}
	switch {
	case hour >= 7 && hour <= 10, hour >= 17 && hour <= 20:
		return Heavy
	case hour == 6, hour > 10 && hour <= 16:
		return Moderate
	default:
		return Light
	}
}

// ClassifyTime classifies the wall-clock hour of t in its own location.
func ClassifyTime(t time.Time) Tier { return Classify(t.Hour()) }

// SpeedKph is the nominal bus speed for a tier. It decreases as traffic worsens.
func SpeedKph(t Tier) float64 {
	switch t {
	case Light:
		return 30
	case Moderate:
		return 20
	case Heavy:
		return 10
	}
	t.MustValid()
	return 0
}

// TravelMinutes estimates whole minutes to cover km at the tier's speed,
// rounded up and never less than one.
func TravelMinutes(km float64, t Tier) int {
	m := int(math.Ceil(km * 60 / SpeedKph(t)))
	if m < 1 {
		return 1
	}
	return m
}
