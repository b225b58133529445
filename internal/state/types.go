package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// LastSeenFormat is the timestamp layout stored in last_seen. It matches
// the historical state files so existing snapshots keep loading.
const LastSeenFormat = "2006-01-02 15:04:05 UTC"

// Availability is the tri-state result of a plate lookup.
//
// Unknown covers both "could not be determined" (transport or parse fault)
// and "never observed". It serializes as JSON null so the snapshot schema
// stays boolean-or-null.
type Availability int

const (
	Unknown Availability = iota
	Available
	Unavailable
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// FromBool maps a definite lookup answer onto the enum.
func FromBool(v bool) Availability {
	if v {
		return Available
	}
	return Unavailable
}

var jsonNull = []byte("null")

func (a Availability) MarshalJSON() ([]byte, error) {
	switch a {
	case Available:
		return []byte("true"), nil
	case Unavailable:
		return []byte("false"), nil
	default:
		return jsonNull, nil
	}
}

func (a *Availability) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), jsonNull) {
		*a = Unknown
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("availability: want true/false/null: %w", err)
	}
	*a = FromBool(v)
	return nil
}

// Record is the last observed status of one combination.
type Record struct {
	Available Availability `json:"available"`
	Reason    string       `json:"reason"`
	LastSeen  string       `json:"last_seen"`
}

// Timestamp formats t the way Record.LastSeen stores it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(LastSeenFormat)
}

var ErrClosed = errors.New("state store closed")
