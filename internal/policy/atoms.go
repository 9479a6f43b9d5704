package policy

import (
	"bytes"
	"encoding/json"
	"slices"
	"sort"

	"consentis/pkg/canonicaljson"
	pstrings "consentis/pkg/platform/strings"
)

// AtomSeparator joins a field path and its value inside an atom. It is the
// ASCII unit separator, which never appears in legitimate field content.
const AtomSeparator = "\x1f"

// Atom is the hex SHA-256 of key, separator and value.
func Atom(key, value string) string {
	return canonicaljson.SHA256Hex([]byte(key + AtomSeparator + value))
}

// ConstraintsSet derives the sorted, de-duplicated atom set of a final
// policy document: one "purpose"/"operation" atom per list entry plus one
// atom per leaf of every other field except templateHash. Nested keys are
// joined with dots and array members yield one atom each.
func ConstraintsSet(doc Document) []string {
	var atoms []string
	for _, p := range doc.Purposes() {
		atoms = append(atoms, Atom("purpose", p))
	}
	for _, o := range doc.Operations() {
		atoms = append(atoms, Atom("operation", o))
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		switch k {
		case "templateHash", "purposes", "operations":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		atoms = walkAtoms(atoms, k, doc[k])
	}

	slices.Sort(atoms)
	return slices.Compact(atoms)
}

func walkAtoms(atoms []string, prefix string, val any) []string {
	switch v := val.(type) {
	case nil:
		return atoms
	case []any:
		for _, el := range v {
			atoms = append(atoms, Atom(prefix, leafText(el)))
		}
	case map[string]any:
		for k, sub := range v {
			atoms = walkAtoms(atoms, prefix+"."+k, sub)
		}
	default:
		atoms = append(atoms, Atom(prefix, leafText(v)))
	}
	return atoms
}

// leafText normalizes strings and renders everything else as compact JSON.
func leafText(v any) string {
	if s, ok := v.(string); ok {
		return pstrings.Normalize(s)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// MatchAtoms reports whether every requested atom is in allowed.
func MatchAtoms(allowed, requested []string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	for _, r := range requested {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
