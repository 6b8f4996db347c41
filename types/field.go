package types

import (
	"fmt"
	"strings"
)

// Field indexes a column of a market data row.
type Field int

const (
	FieldOpen Field = iota
	FieldHigh
	FieldLow
	FieldClose
	FieldVolume
	FieldAdjClose
	FieldDividend

	NumFields = int(FieldDividend) + 1
)

var fieldNames = map[string]Field{
	"open":      FieldOpen,
	"high":      FieldHigh,
	"low":       FieldLow,
	"close":     FieldClose,
	"volume":    FieldVolume,
	"adj_close": FieldAdjClose,
	"dividend":  FieldDividend,
}

func ParseField(name string) (Field, error) {
	f, ok := fieldNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown field %q", name)
	}
	return f, nil
}

func (f Field) String() string {
	for name, v := range fieldNames {
		if v == f {
			return name
		}
	}
	return fmt.Sprintf("field(%d)", int(f))
}
