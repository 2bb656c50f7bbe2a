package model

import "strings"

// Address is a parsed postal address. Fields beyond line 1/city/state/zip
// are not tracked; providers that return richer shapes are flattened by
// their adapters.
type Address struct {
	StreetLine1 string `json:"street_line_1,omitempty"`
	StreetLine2 string `json:"street_line_2,omitempty"`
	City        string `json:"city,omitempty"`
	StateCode   string `json:"state_code,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
}

// IsZero reports whether no component of the address is set.
func (a Address) IsZero() bool {
	return a.StreetLine1 == "" && a.StreetLine2 == "" && a.City == "" &&
		a.StateCode == "" && a.PostalCode == ""
}

// String renders the address on a single display line.
func (a Address) String() string {
	parts := make([]string, 0, 4)
	if a.StreetLine1 != "" {
		parts = append(parts, a.StreetLine1)
	}
	if a.StreetLine2 != "" {
		parts = append(parts, a.StreetLine2)
	}
	if a.City != "" {
		parts = append(parts, a.City)
	}
	switch {
	case a.StateCode != "" && a.PostalCode != "":
		parts = append(parts, a.StateCode+" "+a.PostalCode)
	case a.StateCode != "":
		parts = append(parts, a.StateCode)
	case a.PostalCode != "":
		parts = append(parts, a.PostalCode)
	}
	return strings.Join(parts, ", ")
}
