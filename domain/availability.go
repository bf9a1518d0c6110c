package domain

// AvailabilityStatus enumerates the internal availability vocabulary. Any
// state can follow any other; "sold out" and "became available" are derived
// from an (old, new) pair, not stored transitions.
type AvailabilityStatus string

const (
	Available  AvailabilityStatus = "AVAILABLE"
	Limited    AvailabilityStatus = "LIMITED"
	OnSaleSoon AvailabilityStatus = "ON_SALE_SOON"
	SoldOut    AvailabilityStatus = "SOLD_OUT"
	Unknown    AvailabilityStatus = "UNKNOWN"
)

// ParseAvailabilityStatus maps a stored string back to the enum, defaulting
// to Unknown for anything unrecognized.
func ParseAvailabilityStatus(s string) AvailabilityStatus {
	switch AvailabilityStatus(s) {
	case Available, Limited, OnSaleSoon, SoldOut:
		return AvailabilityStatus(s)
	default:
		return Unknown
	}
}

// IsPurchasable reports whether tickets can currently be bought.
func (s AvailabilityStatus) IsPurchasable() bool {
	return s == Available || s == Limited
}

// WentSoldOut reports whether the (old, new) pair represents a sell-out.
func WentSoldOut(old, new AvailabilityStatus) bool {
	return old != SoldOut && new == SoldOut
}

// BecameAvailable reports whether the (old, new) pair represents tickets
// becoming purchasable after not being so.
func BecameAvailable(old, new AvailabilityStatus) bool {
	return !old.IsPurchasable() && new.IsPurchasable()
}
