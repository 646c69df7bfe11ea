package pastebin

import (
	"strconv"

	"pbin/pkg/domain"
)

// PrivacyLevel is the numeric visibility code Pastebin expects in api_paste_private.
type PrivacyLevel int

const (
	Public PrivacyLevel = iota
	Unlisted
	Private
)

const (
	DefaultTitle      = "untitled paste"
	DefaultPrivacy    = "1"
	DefaultExpiration = "10M"
)

var privacyNames = []string{"public", "unlisted", "private"}

type expiration struct {
	name string
	code string
}

var expirations = []expiration{
	{"never", "N"},
	{"10 minutes", "10M"},
	{"1 hour", "1H"},
	{"1 day", "1D"},
	{"1 week", "1W"},
	{"2 weeks", "2W"},
	{"1 month", "1M"},
	{"6 months", "6M"},
	{"1 year", "1Y"},
}

// Options configures a single paste. The zero value posts an unlisted-code,
// ten minute paste titled DefaultTitle.
type Options struct {
	Name string
	// Privacy is nil, one of "public", "unlisted", "private", or an integer code 0-2.
	Privacy any
	// Expiration is a name such as "1 day" or a short-code such as "1D".
	Expiration string
	// Format is a syntax highlighting code, sent only when set.
	Format string
}

// ResolvePrivacy maps a privacy name or numeric code to the string code Pastebin expects.
func ResolvePrivacy(mode any) (string, error) {
	var n int64
	switch v := mode.(type) {
	case string:
		for i, name := range privacyNames {
			if name == v {
				return strconv.Itoa(i), nil
			}
		}
		return "", &domain.OptionError{Option: "privacy", Value: mode}
	case PrivacyLevel:
		n = int64(v)
	case int:
		n = int64(v)
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint:
		n = int64(v)
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	case uint64:
		if v > uint64(Private) {
			return "", &domain.OptionError{Option: "privacy", Value: mode}
		}
		n = int64(v)
	case uintptr:
		if v > uintptr(Private) {
			return "", &domain.OptionError{Option: "privacy", Value: mode}
		}
		n = int64(v)
	default:
		return "", &domain.OptionError{Option: "privacy", Value: mode}
	}
	if n < int64(Public) || n > int64(Private) {
		return "", &domain.OptionError{Option: "privacy", Value: mode}
	}
	return strconv.FormatInt(n, 10), nil
}

// ResolveExpiration accepts either a short-code or its human readable name.
func ResolveExpiration(code string) (string, error) {
	for _, e := range expirations {
		if e.code == code {
			return code, nil
		}
	}
	for _, e := range expirations {
		if e.name == code {
			return e.code, nil
		}
	}
	return "", &domain.OptionError{Option: "expiration", Value: code}
}

func PrivacyNames() []string {
	out := make([]string, len(privacyNames))
	copy(out, privacyNames)
	return out
}

// ExpirationNames returns name to short-code pairs in table order.
func ExpirationNames() [][2]string {
	out := make([][2]string, len(expirations))
	for i, e := range expirations {
		out[i] = [2]string{e.name, e.code}
	}
	return out
}
