package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	dErrors "consentis/pkg/domain-errors"
)

// Document is a decoded policy in generic JSON form. Arrays are []any and
// numbers float64 or json.Number so the value can be handed to the schema
// validator as is.
type Document map[string]any

// ParseDocument decodes exactly one JSON object. Numbers stay json.Number,
// as on the HTTP path, so large integers reach canonicalization intact.
func ParseDocument(raw []byte) (Document, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "policy is not valid JSON")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "policy must hold a single JSON value")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "policy must be a JSON object")
	}
	return Document(m), nil
}

// Purposes returns the string members of "purposes".
func (d Document) Purposes() []string { return d.strings("purposes") }

// Operations returns the string members of "operations".
func (d Document) Operations() []string { return d.strings("operations") }

func (d Document) strings(key string) []string {
	arr, _ := d[key].([]any)
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// DurationSecs reports "durationSecs" when it is numeric.
func (d Document) DurationSecs() (float64, bool) {
	return number(d["durationSecs"])
}

// AssuranceLevel returns "assuranceLevel" or "".
func (d Document) AssuranceLevel() string {
	s, _ := d["assuranceLevel"].(string)
	return s
}

// LegalFlags returns the "legalFlags" object or nil.
func (d Document) LegalFlags() map[string]any {
	m, _ := d["legalFlags"].(map[string]any)
	return m
}

// number accepts JSON numbers and numeric strings.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// VersionOf reads an optional "version" member, accepting 3, "3" or "v3".
func VersionOf(d Document) (string, error) {
	switch v := d["version"].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("version must be a string or number, got %T", v))
	}
}
