package israelpost

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"
)

// Response is what came back from one upstream request. Err is set when
// the request failed at the transport level, in which case the other
// fields are meaningless.
type Response struct {
	StatusCode int
	Body       string
	Err        error
}

// rule is one step of the classification cascade. A rule that does not
// apply returns matched=false and the next rule is tried.
type rule struct {
	name  string
	apply func(r *Response) (zipcode string, matched bool, err error)
}

// Rules are evaluated in order; the first match wins. New upstream quirks
// get a new entry rather than a change to an existing one.
var rules = []rule{
	{"timeout", timeoutRule},
	{"transport", transportRule},
	{"http_status", httpStatusRule},
	{"bot_protection", botProtectionRule},
	{"zipcode", zipcodeRule},
	{"res_code", resCodeRule},
	{"fallback", fallbackRule},
}

// Classify turns an upstream response into a zipcode or a classified
// *Error. Exactly one of the results is set.
func Classify(r Response) (string, error) {
	zip, _, err := classify(&r)
	return zip, err
}

// classify also reports the rule that decided, for logging.
func classify(r *Response) (string, string, error) {
	for _, rl := range rules {
		if zip, ok, err := rl.apply(r); ok {
			return zip, rl.name, err
		}
	}
	// unreachable: fallbackRule always matches
	return "", "none", &Error{Kind: KindServiceUnavailable}
}

func timeoutRule(r *Response) (string, bool, error) {
	if r.Err == nil || !isTimeout(r.Err) {
		return "", false, nil
	}
	return "", true, &Error{Kind: KindTimeout, Err: r.Err}
}

func transportRule(r *Response) (string, bool, error) {
	if r.Err == nil {
		return "", false, nil
	}
	if isConnectivity(r.Err) {
		return "", true, &Error{Kind: KindNetworkUnavailable, Err: r.Err}
	}
	return "", true, &Error{Kind: KindServiceUnavailable, Err: r.Err}
}

func httpStatusRule(r *Response) (string, bool, error) {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return "", false, nil
	}
	return "", true, &Error{
		Kind:       KindHTTPError,
		StatusCode: r.StatusCode,
		StatusText: http.StatusText(r.StatusCode),
	}
}

// botMarkers are lowercase fingerprints of anti-automation challenge pages.
var botMarkers = []string{
	"captcha",
	"shieldsquare",
	"perfdrive.com",
	"protection service",
	"access denied",
	"blocked",
}

// IsBotProtected reports whether body looks like a challenge page.
func IsBotProtected(body string) bool {
	lower := strings.ToLower(body)
	for _, m := range botMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func botProtectionRule(r *Response) (string, bool, error) {
	if !IsBotProtected(r.Body) {
		return "", false, nil
	}
	return "", true, &Error{Kind: KindBotProtection}
}

var (
	// RES8 followed by the seven zipcode digits.
	successRe = regexp.MustCompile(`RES8(\d{7})`)
	resCodeRe = regexp.MustCompile(`RES(\d+)`)
)

func zipcodeRule(r *Response) (string, bool, error) {
	m := successRe.FindStringSubmatch(r.Body)
	if m == nil {
		return "", false, nil
	}
	if !ValidZipcode(m[1]) {
		return "", true, &Error{Kind: KindMalformedZip}
	}
	return m[1], true, nil
}

func resCodeRule(r *Response) (string, bool, error) {
	m := resCodeRe.FindStringSubmatch(r.Body)
	if m == nil {
		return "", false, nil
	}
	code := m[1]
	switch code[0] {
	case '0', '1', '2':
		return "", true, &Error{Kind: KindAddressNotFound}
	case '8':
		// 8 means success but the payload did not have the expected shape
		return "", true, &Error{Kind: KindUnexpectedFormat}
	default:
		return "", true, &Error{Kind: KindUpstreamError, Code: code}
	}
}

func fallbackRule(*Response) (string, bool, error) {
	return "", true, &Error{Kind: KindServiceUnavailable}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isConnectivity(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}
