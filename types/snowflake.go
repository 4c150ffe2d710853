// SPDX-License-Identifier: MIT

// Package types holds the wire payloads and identifier primitives of the
// Discord user API. Structs here are plain data: they carry no client
// references and marshal exactly as the API expects.
package types

import (
	"bytes"
	"strconv"
	"time"
)

// Epoch is the Discord epoch: the first second of 2015, in milliseconds.
const Epoch int64 = 1420070400000

// Snowflake is a 64-bit entity ID. The API transmits snowflakes as
// decimal strings to survive JSON number precision; the zero value
// means "absent".
type Snowflake uint64

// ParseSnowflake parses a decimal string ID.
func ParseSnowflake(s string) (Snowflake, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Snowflake(v), nil
}

func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// IsZero reports whether the ID is absent.
func (s Snowflake) IsZero() bool { return s == 0 }

// Time recovers the creation timestamp embedded in the upper 42 bits.
func (s Snowflake) Time() time.Time {
	ms := int64(s>>22) + Epoch
	return time.UnixMilli(ms).UTC()
}

// MarshalJSON emits the ID as a quoted decimal string. A zero snowflake
// marshals as null so omitted IDs stay omitted on round trips.
func (s Snowflake) MarshalJSON() ([]byte, error) {
	if s == 0 {
		return []byte("null"), nil
	}
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted string, a bare number, or null.
func (s *Snowflake) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return err
	}
	*s = Snowflake(v)
	return nil
}
