package types

import "fmt"

// Interval is the bar width candles are aggregated to.
type Interval string

const (
	OneMinute      Interval = "1"
	ThreeMinutes   Interval = "3"
	FiveMinutes    Interval = "5"
	FifteenMinutes Interval = "15"
	ThirtyMinutes  Interval = "30"
	Hour           Interval = "60"
	TwoHours       Interval = "120"
	FourHours      Interval = "240"
	Day            Interval = "D"
	Week           Interval = "W"
	Month          Interval = "M"
)

var intervals = map[Interval]struct{}{
	OneMinute: {}, ThreeMinutes: {}, FiveMinutes: {}, FifteenMinutes: {}, ThirtyMinutes: {},
	Hour: {}, TwoHours: {}, FourHours: {}, Day: {}, Week: {}, Month: {},
}

func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := intervals[iv]; !ok {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return iv, nil
}
