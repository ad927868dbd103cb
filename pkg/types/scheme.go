package types

import "fmt"

// Scheme identifies the encapsulation a frame is sent or received with
type Scheme uint8

const (
	SchemeS2Unauthenticated Scheme = 0x01
	SchemeS2Authenticated   Scheme = 0x02
	SchemeS2Access          Scheme = 0x03
	SchemeUDP               Scheme = 0x04
	SchemeS0                Scheme = 0x07
	SchemeNet               Scheme = 0xFC // Highest scheme the gateway itself holds
	SchemeCRC16             Scheme = 0xFD
	SchemeAuto              Scheme = 0xFE
	SchemeNone              Scheme = 0xFF
)

// String returns string representation of Scheme
func (s Scheme) String() string {
	switch s {
	case SchemeS2Unauthenticated:
		return "S2-Unauthenticated"
	case SchemeS2Authenticated:
		return "S2-Authenticated"
	case SchemeS2Access:
		return "S2-Access"
	case SchemeUDP:
		return "UDP"
	case SchemeS0:
		return "S0"
	case SchemeNet:
		return "Net"
	case SchemeCRC16:
		return "CRC16"
	case SchemeAuto:
		return "Auto"
	case SchemeNone:
		return "None"
	default:
		return fmt.Sprintf("Scheme(0x%02X)", uint8(s))
	}
}

// IsS2 returns true for the three S2 key classes
func (s Scheme) IsS2() bool {
	return s == SchemeS2Unauthenticated || s == SchemeS2Authenticated || s == SchemeS2Access
}

// Priority ranks schemes by strength. Higher is stronger.
func (s Scheme) Priority() int {
	switch s {
	case SchemeUDP:
		return 0xFFFF
	case SchemeS2Access:
		return 4
	case SchemeS2Authenticated:
		return 3
	case SchemeS2Unauthenticated:
		return 2
	case SchemeS0:
		return 1
	default:
		return 0
	}
}

// AtLeast returns true if s is as strong as other
func (s Scheme) AtLeast(other Scheme) bool {
	return s.Priority() >= other.Priority()
}

// SchemeMask is the per-node capability flag set kept by the node cache
type SchemeMask uint8

const (
	NodeFlagS0                SchemeMask = 0x01
	NodeFlagKnownBad          SchemeMask = 0x02
	NodeFlagS2Unauthenticated SchemeMask = 0x10
	NodeFlagS2Authenticated   SchemeMask = 0x20
	NodeFlagS2Access          SchemeMask = 0x40

	NodeFlagsSecure = NodeFlagS0 | NodeFlagS2Unauthenticated | NodeFlagS2Authenticated | NodeFlagS2Access
)

// Has returns true if every bit in f is set
func (m SchemeMask) Has(f SchemeMask) bool {
	return m&f == f
}

// KnownBad returns true if the node failed secure inclusion or interview
func (m SchemeMask) KnownBad() bool {
	return m&NodeFlagKnownBad != 0
}

// Highest returns the strongest security scheme in the mask, or SchemeNone
func (m SchemeMask) Highest() Scheme {
	switch {
	case m&NodeFlagS2Access != 0:
		return SchemeS2Access
	case m&NodeFlagS2Authenticated != 0:
		return SchemeS2Authenticated
	case m&NodeFlagS2Unauthenticated != 0:
		return SchemeS2Unauthenticated
	case m&NodeFlagS0 != 0:
		return SchemeS0
	default:
		return SchemeNone
	}
}

// Supports returns true if the mask grants the given security scheme
func (m SchemeMask) Supports(s Scheme) bool {
	switch s {
	case SchemeS2Access:
		return m&NodeFlagS2Access != 0
	case SchemeS2Authenticated:
		return m&NodeFlagS2Authenticated != 0
	case SchemeS2Unauthenticated:
		return m&NodeFlagS2Unauthenticated != 0
	case SchemeS0:
		return m&NodeFlagS0 != 0
	default:
		return false
	}
}
