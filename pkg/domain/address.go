package domain

import (
	"fmt"

	dErrors "pidgate/pkg/domain-errors"
)

// AddressField names one of the fields of a raw address.
type AddressField string

const (
	FieldCountry    AddressField = "country"
	FieldPostalCode AddressField = "postal_code"
	FieldProvince   AddressField = "province"
	FieldCity       AddressField = "city"
	FieldStreet     AddressField = "street"
	FieldBuilding   AddressField = "building"
	FieldRoom       AddressField = "room"
)

// AddressFields lists every field in canonical order.
var AddressFields = []AddressField{
	FieldCountry, FieldPostalCode, FieldProvince, FieldCity, FieldStreet, FieldBuilding, FieldRoom,
}

// ParseAddressField rejects names outside the canonical field set.
func ParseAddressField(s string) (AddressField, error) {
	for _, f := range AddressFields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown address field %q", s))
}

// Address is a raw, human-readable address. It never leaves the vault except
// through an authorized and audited resolution.
type Address struct {
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
	Province   string `json:"province"`
	City       string `json:"city"`
	Street     string `json:"street"`
	Building   string `json:"building"`
	Room       string `json:"room"`
}

// Get returns the value of field f.
func (a Address) Get(f AddressField) string {
	switch f {
	case FieldCountry:
		return a.Country
	case FieldPostalCode:
		return a.PostalCode
	case FieldProvince:
		return a.Province
	case FieldCity:
		return a.City
	case FieldStreet:
		return a.Street
	case FieldBuilding:
		return a.Building
	case FieldRoom:
		return a.Room
	}
	return ""
}

// Validate requires the fields every address has.
func (a Address) Validate() error {
	if a.Country == "" {
		return dErrors.New(dErrors.CodeValidation, "country is required")
	}
	if a.City == "" {
		return dErrors.New(dErrors.CodeValidation, "city is required")
	}
	return nil
}
