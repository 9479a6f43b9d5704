// Package policy turns free-form consent policy requests into
// schema-validated canonical documents. The policy hash is the SHA-256 of
// the canonical JSON of the final document, and the constraint atoms are
// one-way hashes of the individual facts it states.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"consentis/pkg/canonicaljson"
	dErrors "consentis/pkg/domain-errors"
	pstrings "consentis/pkg/platform/strings"
)

const secondsPerDay = 86400

// Result is a canonicalized policy.
type Result struct {
	PolicyJSON      json.RawMessage `json:"policyJson"`
	PolicyHash      string          `json:"policyHash"`
	TemplateHash    string          `json:"templateHash"`
	TemplateVersion string          `json:"templateVersion"`
	DurationSecs    *int64          `json:"durationSecs,omitempty"`
	AssuranceLevel  *string         `json:"assuranceLevel"`
	ConstraintsSet  []string        `json:"constraintsSet"`

	Document Document `json:"-"`
}

// ValidationError lists every schema rule the projected policy violates.
type ValidationError struct {
	Version    string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("policy does not match template %s: %s", e.Version, strings.Join(e.Violations, "; "))
}

// ErrorDetails lets transports render the violations individually.
func (e *ValidationError) ErrorDetails() []string { return e.Violations }

// Canonicalizer projects, normalizes, validates and hashes policies.
type Canonicalizer struct {
	registry *Registry
}

// NewCanonicalizer uses reg for template lookup.
func NewCanonicalizer(reg *Registry) *Canonicalizer {
	return &Canonicalizer{registry: reg}
}

// Registry exposes the template registry.
func (c *Canonicalizer) Registry() *Registry { return c.registry }

// Canonicalize runs raw through the template named by version ("" for the
// latest). Keys the template does not declare are dropped before anything
// is hashed. Nothing is hashed when validation fails.
func (c *Canonicalizer) Canonicalize(version string, raw Document) (*Result, error) {
	tmpl, err := c.registry.Get(version)
	if err != nil {
		return nil, err
	}

	src := expandConvenience(raw)
	projected, _ := project(tmpl.shape, map[string]any(src)).(map[string]any)
	if projected == nil {
		projected = map[string]any{}
	}
	doc := normalize(Document(projected))
	doc["templateHash"] = tmpl.Hash

	if err := tmpl.schema.Validate(map[string]any(doc)); err != nil {
		verr := &ValidationError{Version: tmpl.Version, Violations: violations(err)}
		return nil, dErrors.Wrap(verr, dErrors.CodePolicyValidationFailed, verr.Error())
	}

	hash, canonical, err := canonicaljson.Digest(doc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to canonicalize policy")
	}

	res := &Result{
		PolicyJSON:      canonical,
		PolicyHash:      hash,
		TemplateHash:    tmpl.Hash,
		TemplateVersion: tmpl.Version,
		ConstraintsSet:  ConstraintsSet(doc),
		Document:        doc,
	}
	if secs, ok := doc.DurationSecs(); ok {
		n := int64(secs)
		res.DurationSecs = &n
	}
	if al := doc.AssuranceLevel(); al != "" {
		res.AssuranceLevel = &al
	}
	return res, nil
}

// expandConvenience applies durationDays and comma-separated list inputs on a
// shallow copy of raw.
func expandConvenience(raw Document) Document {
	src := make(Document, len(raw))
	for k, v := range raw {
		src[k] = v
	}
	if _, ok := src["durationSecs"]; !ok {
		if days, ok := number(src["durationDays"]); ok && days > 0 {
			src["durationSecs"] = math.Round(days * secondsPerDay)
		}
	}
	for _, key := range []string{"purposes", "operations"} {
		if s, ok := src[key].(string); ok {
			src[key] = toAny(pstrings.SplitCSV(s))
		}
	}
	return src
}

// project keeps only the keys declared by the schema, recursing through
// object properties and array items.
func project(schema map[string]any, src any) any {
	if schema == nil {
		return src
	}
	switch schema["type"] {
	case "object":
		props, _ := schema["properties"].(map[string]any)
		obj, ok := src.(map[string]any)
		if props == nil || !ok {
			return src
		}
		out := make(map[string]any, len(props))
		for k, sub := range props {
			v, present := obj[k]
			if !present {
				continue
			}
			subSchema, _ := sub.(map[string]any)
			out[k] = project(subSchema, v)
		}
		return out
	case "array":
		arr, ok := src.([]any)
		if !ok {
			return src
		}
		items, _ := schema["items"].(map[string]any)
		out := make([]any, len(arr))
		for i, el := range arr {
			out[i] = project(items, el)
		}
		return out
	}
	return src
}

// normalize trims, lower-cases, de-duplicates and sorts the purpose and
// operation lists. Lists holding non-strings are left for the validator.
func normalize(doc Document) Document {
	for _, key := range []string{"purposes", "operations"} {
		arr, ok := doc[key].([]any)
		if !ok {
			continue
		}
		strs := make([]string, 0, len(arr))
		for _, el := range arr {
			s, ok := el.(string)
			if !ok {
				strs = nil
				break
			}
			strs = append(strs, s)
		}
		if strs != nil || len(arr) == 0 {
			doc[key] = toAny(pstrings.NormalizeSet(strs))
		}
	}
	return doc
}

func violations(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, loc+": "+e.Message)
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)
	sort.Strings(out)
	return out
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
