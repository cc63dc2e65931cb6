package israelpost

import (
	"errors"
	"fmt"
)

// Kind classifies why a lookup failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindTimeout
	KindNetworkUnavailable
	KindHTTPError
	KindBotProtection
	KindMalformedZip
	KindAddressNotFound
	KindUpstreamError
	KindUnexpectedFormat
	KindServiceUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindInvalidInput:       "invalid_input",
	KindTimeout:            "timeout",
	KindNetworkUnavailable: "network_unavailable",
	KindHTTPError:          "http_error",
	KindBotProtection:      "bot_protection",
	KindMalformedZip:       "malformed_zip",
	KindAddressNotFound:    "address_not_found",
	KindUpstreamError:      "upstream_error",
	KindUnexpectedFormat:   "unexpected_format",
	KindServiceUnavailable: "service_unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the terminal failure of a lookup. StatusCode/StatusText are set
// for KindHTTPError, Code for KindUpstreamError.
type Error struct {
	Kind       Kind
	StatusCode int
	StatusText string
	Code       string
	Err        error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindInvalidInput:
		msg = "invalid address"
	case KindTimeout:
		msg = "request timeout: Israel Post service might be slow or protected"
	case KindNetworkUnavailable:
		msg = "network error: unable to reach Israel Post service"
	case KindHTTPError:
		msg = fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.StatusText)
	case KindBotProtection:
		msg = "Israel Post service is protected by anti-bot measures; try again later or use manual lookup at israelpost.co.il"
	case KindMalformedZip:
		msg = "invalid zipcode format received from Israel Post"
	case KindAddressNotFound:
		msg = "address not found in Israel Post database"
	case KindUpstreamError:
		msg = fmt.Sprintf("Israel Post returned error code: %s", e.Code)
	case KindUnexpectedFormat:
		msg = "unexpected zipcode format from Israel Post service"
	case KindServiceUnavailable:
		msg = "Israel Post service is currently unavailable; try again later or use manual lookup at israelpost.co.il"
	default:
		msg = "zipcode lookup failed"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels below work
// with errors.Is regardless of detail fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrNetworkUnavailable = &Error{Kind: KindNetworkUnavailable}
	ErrHTTPError          = &Error{Kind: KindHTTPError}
	ErrBotProtection      = &Error{Kind: KindBotProtection}
	ErrMalformedZip       = &Error{Kind: KindMalformedZip}
	ErrAddressNotFound    = &Error{Kind: KindAddressNotFound}
	ErrUpstreamError      = &Error{Kind: KindUpstreamError}
	ErrUnexpectedFormat   = &Error{Kind: KindUnexpectedFormat}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
)

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func invalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Err: fmt.Errorf(format, args...)}
}
