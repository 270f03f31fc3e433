// Package mode defines the payload operating modes and the legal edges
// between them.
package mode

import (
	"errors"
	"fmt"
)

type Mode int

// Values match the status entry of the object dictionary.
const (
	Off      Mode = 0
	Boot     Mode = 1
	Standby  Mode = 2
	Film     Mode = 3
	Transmit Mode = 4
	Purge    Mode = 5
	Error    Mode = 0xFF
)

var ErrUnknownMode = errors.New("unknown mode")

// All lists every mode in declaration order
var All = []Mode{Off, Boot, Standby, Film, Transmit, Purge, Error}

// Transitions maps a mode to the modes reachable directly from it.
// Error always leads back to Standby.
var Transitions = map[Mode][]Mode{
	Off:      {Boot},
	Boot:     {Standby},
	Standby:  {Film, Transmit, Purge},
	Film:     {Standby, Error},
	Transmit: {Standby, Error},
	Purge:    {Standby, Error},
	Error:    {Standby},
}

func (m Mode) String() string {
	switch m {
	case Off:
		return "OFF"
	case Boot:
		return "BOOT"
	case Standby:
		return "STANDBY"
	case Film:
		return "FILM"
	case Transmit:
		return "TRANSMIT"
	case Purge:
		return "PURGE"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Parse converts a raw object dictionary value into a Mode
func Parse(v int) (Mode, error) {
	m := Mode(v)
	for _, known := range All {
		if m == known {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownMode, v)
}

// ParseName accepts the String() form, e.g. "STANDBY"
func ParseName(name string) (Mode, error) {
	for _, known := range All {
		if known.String() == name {
			return known, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, name)
}

// IsLegal reports whether requested may be adopted while in current.
// Staying in the same mode is always legal.
func IsLegal(current, requested Mode) bool {
	if current == requested {
		return true
	}
	for _, next := range Transitions[current] {
		if next == requested {
			return true
		}
	}
	return false
}
