package israelpost

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexString decodes from either a JSON string or a JSON number. House
// numbers and entrances arrive both ways.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// FromInt is a convenience for numeric house numbers.
func FromInt(n int) FlexString {
	return FlexString(strconv.Itoa(n))
}

// Address is a structured Israeli street address.
type Address struct {
	City        string     `json:"city"`
	Street      string     `json:"street"`
	HouseNumber FlexString `json:"houseNumber,omitempty"`
	Entrance    FlexString `json:"entrance,omitempty"`
}

// ParseAddress decodes a JSON object into an Address. null, non-object
// values and undecodable input yield KindInvalidInput.
func ParseAddress(data []byte) (*Address, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, invalidInput("address is empty")
	}
	if data[0] != '{' {
		return nil, invalidInput("address must be a JSON object")
	}
	var a Address
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, invalidInput("decode address: %w", err)
	}
	return &a, nil
}

// IsBlank reports whether every lookup field is empty after trimming.
func (a *Address) IsBlank() bool {
	return strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.Street) == "" &&
		strings.TrimSpace(string(a.HouseNumber)) == "" &&
		strings.TrimSpace(string(a.Entrance)) == ""
}

// cacheKeyFields fixes the field order of the cache key.
type cacheKeyFields struct {
	City        string `json:"city"`
	Street      string `json:"street"`
	HouseNumber string `json:"houseNumber"`
	Entrance    string `json:"entrance"`
}

// CacheKey serializes exactly the four lookup fields in a fixed order.
// Addresses with equal fields always share a key.
func (a *Address) CacheKey() string {
	b, _ := json.Marshal(cacheKeyFields{
		City:        a.City,
		Street:      a.Street,
		HouseNumber: string(a.HouseNumber),
		Entrance:    string(a.Entrance),
	})
	return string(b)
}

// Params maps the address onto the upstream query fields.
func (a *Address) Params() []Param {
	return []Param{
		{Key: "Location", Value: a.City},
		{Key: "Street", Value: a.Street},
		{Key: "House", Value: string(a.HouseNumber)},
		{Key: "Entrance", Value: string(a.Entrance)},
	}
}
