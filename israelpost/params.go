package israelpost

import (
	"fmt"
	"net/url"
	"strings"
)

// Param is a single query field. Value may be any type; it is rendered
// with fmt.Sprint.
type Param struct {
	Key   string
	Value any
}

// EncodeParams builds a query string from params in the given order,
// skipping nil values and values that are blank after trimming. Values are
// percent-encoded like encodeURIComponent: spaces as %20, and
// the marks !'()* left as is.
func EncodeParams(params ...Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Value == nil {
			continue
		}
		v := fmt.Sprint(p.Value)
		if strings.TrimSpace(v) == "" {
			continue
		}
		parts = append(parts, p.Key+"="+escape(v))
	}
	return strings.Join(parts, "&")
}

// uriUnescaper restores the marks encodeURIComponent leaves alone but
// url.QueryEscape encodes.
var uriUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func escape(s string) string {
	return uriUnescaper.Replace(url.QueryEscape(s))
}

// joinQuery appends an encoded query to base, which may already carry a
// query (the upstream agent URL ends in "?OpenAgent&").
func joinQuery(base, query string) string {
	if query == "" {
		return base
	}
	switch {
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		return base + query
	case strings.Contains(base, "?"):
		return base + "&" + query
	default:
		return base + "?" + query
	}
}
