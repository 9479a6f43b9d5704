package policy

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"consentis/pkg/canonicaljson"
	dErrors "consentis/pkg/domain-errors"
)

//go:embed templates/*.json
var embedded embed.FS

var templateFile = regexp.MustCompile(`^v([0-9]+)\.json$`)

// Template is one versioned policy schema.
type Template struct {
	Version string // "v3"
	Number  int
	Hash    string // SHA-256 of the canonical schema
	Raw     []byte // canonical schema bytes

	shape  map[string]any
	schema *jsonschema.Schema
}

// Registry holds the known templates keyed by version number.
type Registry struct {
	templates map[int]*Template
	latest    int
}

// DefaultRegistry loads the templates embedded in the binary.
func DefaultRegistry() (*Registry, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	return NewRegistry(sub)
}

// MustDefaultRegistry is DefaultRegistry for callers that cannot run
// without the embedded templates.
func MustDefaultRegistry() *Registry {
	r, err := DefaultRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// NewRegistry loads every v<N>.json file at the root of fsys.
func NewRegistry(fsys fs.FS) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading templates: %w", err)
	}
	r := &Registry{templates: make(map[int]*Template)}
	for _, e := range entries {
		m := templateFile.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		raw, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", e.Name(), err)
		}
		t, err := compileTemplate(n, raw)
		if err != nil {
			return nil, err
		}
		r.templates[n] = t
		if n > r.latest {
			r.latest = n
		}
	}
	if len(r.templates) == 0 {
		return nil, fmt.Errorf("no policy templates found")
	}
	return r, nil
}

func compileTemplate(n int, raw []byte) (*Template, error) {
	canonical, err := canonicaljson.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("template v%d: %w", n, err)
	}
	var shape map[string]any
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("template v%d: %w", n, err)
	}

	url := fmt.Sprintf("https://consentis.local/templates/v%d.json", n)
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("template v%d: %w", n, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("template v%d: %w", n, err)
	}
	return &Template{
		Version: fmt.Sprintf("v%d", n),
		Number:  n,
		Hash:    canonicaljson.SHA256Hex(canonical),
		Raw:     canonical,
		shape:   shape,
		schema:  schema,
	}, nil
}

// Get resolves "3", "v3" or "" (latest).
func (r *Registry) Get(version string) (*Template, error) {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	if v == "" {
		return r.templates[r.latest], nil
	}
	n, err := strconv.Atoi(v)
	if err == nil {
		if t, ok := r.templates[n]; ok {
			return t, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeTemplateNotFound, fmt.Sprintf("template v%s not found", v))
}

// Latest returns the highest-numbered template.
func (r *Registry) Latest() *Template {
	return r.templates[r.latest]
}

// Versions lists the known versions in ascending order.
func (r *Registry) Versions() []string {
	nums := make([]int, 0, len(r.templates))
	for n := range r.templates {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	out := make([]string, len(nums))
	for i, n := range nums {
		out[i] = r.templates[n].Version
	}
	return out
}
