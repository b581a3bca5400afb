package model

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Snowflake is the 64-bit time-ordered identifier used for every entity.
// The high 42 bits carry milliseconds since the service epoch, so numeric
// order is creation order.
type Snowflake uint64

// InvalidSnowflake marks an absent identifier.
const InvalidSnowflake Snowflake = ^Snowflake(0)

// Epoch is the service epoch (2015-01-01T00:00:00Z) in Unix milliseconds.
const Epoch = 1420070400000

// IsValid reports whether s refers to an actual entity.
func (s Snowflake) IsValid() bool {
	return s != 0 && s != InvalidSnowflake
}

// Time returns the creation time encoded in the identifier.
func (s Snowflake) Time() time.Time {
	ms := int64(s>>22) + Epoch
	return time.UnixMilli(ms)
}

func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// NewSnowflake synthesizes an identifier for t, for locally created rows
// that must sort correctly against server-issued ids.
func NewSnowflake(t time.Time) Snowflake {
	return Snowflake(uint64(t.UnixMilli()-Epoch) << 22)
}

// ParseSnowflake parses the decimal string form used on the wire.
func ParseSnowflake(str string) (Snowflake, error) {
	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("couldn't parse snowflake %q: %w", str, err)
	}
	return Snowflake(v), nil
}

// MustParseSnowflake is ParseSnowflake for trusted literals.
func MustParseSnowflake(str string) Snowflake {
	v, err := ParseSnowflake(str)
	if err != nil {
		panic(err)
	}
	return v
}

// The wire format quotes identifiers to survive 53-bit JSON readers.

func (s Snowflake) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Snowflake) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}
	b = bytes.Trim(b, `"`)
	if len(b) == 0 {
		*s = 0
		return nil
	}
	v, err := ParseSnowflake(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
