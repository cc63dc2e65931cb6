package israelpost

import "regexp"

var zipcodeRe = regexp.MustCompile(`^[1-9][0-9]{6}$`)

// ValidZipcode reports whether s is an Israeli postal code: seven digits,
// no leading zero.
func ValidZipcode(s string) bool {
	return zipcodeRe.MatchString(s)
}
