package domain

import (
	"strings"
	"time"
)

// Address represents one saved delivery location for a user. Addresses are
// exclusively owned: UserID is the only principal that can read or mutate
// the record.
type Address struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Label       string    `json:"label"`
	Line1       string    `json:"line1"`
	Line2       string    `json:"line2"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Pincode     string    `json:"pincode"`
	Lat         *float64  `json:"lat,omitempty"`
	Lng         *float64  `json:"lng,omitempty"`
	IsDefault   bool      `json:"is_default"`
	Fingerprint string    `json:"-"`
	LastUsedAt  time.Time `json:"last_used_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Coords is a latitude/longitude pair on the wire.
type Coords struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// AddressResponse is the wire shape returned to clients. Line2 is always
// present (empty string when unset) and Coords is null when neither
// coordinate is stored.
type AddressResponse struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Line1      string  `json:"line1"`
	Line2      string  `json:"line2"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	Pincode    string  `json:"pincode"`
	IsDefault  bool    `json:"is_default"`
	Coords     *Coords `json:"coords"`
	LastUsedAt *string `json:"last_used_at"`
}

// Response maps the address to its wire shape.
func (a *Address) Response() AddressResponse {
	resp := AddressResponse{
		ID:        a.ID,
		Label:     a.Label,
		Line1:     a.Line1,
		Line2:     a.Line2,
		City:      a.City,
		State:     a.State,
		Pincode:   a.Pincode,
		IsDefault: a.IsDefault,
	}

	if a.Lat != nil || a.Lng != nil {
		resp.Coords = &Coords{Lat: a.Lat, Lng: a.Lng}
	}

	if !a.LastUsedAt.IsZero() {
		ts := a.LastUsedAt.UTC().Format(time.RFC3339)
		resp.LastUsedAt = &ts
	}

	return resp
}

// fingerprintDelimiter separates the normalized segments. Addresses are
// free text, so pick a character that does not occur in them.
const fingerprintDelimiter = "|"

// Fingerprint derives a stable deduplication key from the geographically
// significant fields of an address. Each segment is trimmed, has internal
// whitespace runs collapsed to a single space, and is lower-cased; segments
// are then joined with a pipe in fixed order. Two inputs that differ only by
// case or whitespace produce the same fingerprint; inputs that differ in any
// segment's content produce different fingerprints.
func Fingerprint(line1, line2, city, state, pincode string) string {
	segments := []string{
		normalizeSegment(line1),
		normalizeSegment(line2),
		normalizeSegment(city),
		normalizeSegment(state),
		normalizeSegment(pincode),
	}
	return strings.Join(segments, fingerprintDelimiter)
}

// normalizeSegment collapses whitespace runs and lower-cases the segment.
func normalizeSegment(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
