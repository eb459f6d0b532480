// Package address manages the shopper's saved delivery addresses. The remote
// backend owns the records; the manager keeps a local cache that upholds the
// capacity and single-primary rules.
package address

import (
	"strings"

	"github.com/lumen-apothecary/storefront/internal/errors"
)

// MaxSavedAddresses is how many addresses a shopper may keep.
const MaxSavedAddresses = 3

// SavedAddress is an address record as stored by the backend.
type SavedAddress struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	FullName  string `json:"fullname"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	Mobile    string `json:"mobile"`
	Email     string `json:"email"`
	City      string `json:"city"`
	Pincode   string `json:"pincode"`
	IsPrimary int    `json:"is_primary"`
}

// Primary reports whether the address is the primary one.
func (a SavedAddress) Primary() bool { return a.IsPrimary == 1 }

// FormData is what the shopper fills in.
type FormData struct {
	FullName string `json:"fullname"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	Mobile   string `json:"mobile"`
	Email    string `json:"email"`
	City     string `json:"city"`
	Pincode  string `json:"pincode"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (f FormData) Trimmed() FormData {
	return FormData{
		FullName: strings.TrimSpace(f.FullName),
		Address1: strings.TrimSpace(f.Address1),
		Address2: strings.TrimSpace(f.Address2),
		Mobile:   strings.TrimSpace(f.Mobile),
		Email:    strings.TrimSpace(f.Email),
		City:     strings.TrimSpace(f.City),
		Pincode:  strings.TrimSpace(f.Pincode),
	}
}

// Validate checks the required fields of an already trimmed form.
func (f FormData) Validate() error {
	missing := make([]string, 0, 5)
	for _, field := range []struct{ name, value string }{
		{"fullname", f.FullName},
		{"address1", f.Address1},
		{"mobile", f.Mobile},
		{"city", f.City},
		{"pincode", f.Pincode},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return errors.Validation("Please fill in all required address fields").
			WithDetails("missing", missing)
	}
	return nil
}

func (f FormData) apply(a SavedAddress) SavedAddress {
	a.FullName = f.FullName
	a.Address1 = f.Address1
	a.Address2 = f.Address2
	a.Mobile = f.Mobile
	a.Email = f.Email
	a.City = f.City
	a.Pincode = f.Pincode
	return a
}

// normalize leaves at most one primary address. prefer is the id a
// successful mutation just made primary; it wins whenever it is in the list,
// even if the backend's read still carries the old flags. Otherwise the
// first primary in list order wins.
func normalize(list []SavedAddress, prefer string) []SavedAddress {
	winner := ""
	if prefer != "" {
		for _, a := range list {
			if a.ID == prefer {
				winner = prefer
				break
			}
		}
	}
	if winner == "" {
		for _, a := range list {
			if a.Primary() {
				winner = a.ID
				break
			}
		}
	}

	out := make([]SavedAddress, len(list))
	for i, a := range list {
		if a.ID == winner && winner != "" {
			a.IsPrimary = 1
		} else {
			a.IsPrimary = 0
		}
		out[i] = a
	}
	return out
}
