package models

import "strings"

// CabinClass is the travel class an observation or prediction applies to.
type CabinClass string

const (
	CabinEconomy        CabinClass = "ECONOMY"
	CabinPremiumEconomy CabinClass = "PREMIUM_ECONOMY"
	CabinBusiness       CabinClass = "BUSINESS"
	CabinFirst          CabinClass = "FIRST"
)

// IsValidCabinClass returns true if c is a supported cabin class.
func IsValidCabinClass(c CabinClass) bool {
	switch c {
	case CabinEconomy, CabinPremiumEconomy, CabinBusiness, CabinFirst:
		return true
	default:
		return false
	}
}

// DefaultCabinClass returns the default cabin class.
func DefaultCabinClass() CabinClass { return CabinEconomy }

// NormalizeCabinClass converts a raw string to a valid cabin class (or default).
func NormalizeCabinClass(s string) CabinClass {
	if s == "" {
		return DefaultCabinClass()
	}
	c := CabinClass(strings.ToUpper(strings.TrimSpace(s)))
	if IsValidCabinClass(c) {
		return c
	}
	return DefaultCabinClass()
}
