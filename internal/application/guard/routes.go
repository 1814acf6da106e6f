package guard

import (
	_ "embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultRoutesYAML []byte

// routeFile is the YAML layout of a route table
type routeFile struct {
	Default string            `yaml:"default"`
	Views   map[string]string `yaml:"views"`
}

type route struct {
	prefix      string
	requirement Requirement
}

// Routes maps view paths to requirements by longest matching path prefix
type Routes struct {
	routes []route // sorted by descending prefix length
	def    Requirement
}

// DefaultRoutes returns the built-in storefront route table
func DefaultRoutes() *Routes {
	r, err := ParseRoutes(defaultRoutesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded routes.yaml is invalid: %v", err))
	}
	return r
}

// LoadRoutes reads a route table from a YAML file
func LoadRoutes(filename string) (*Routes, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read route table: %w", err)
	}
	return ParseRoutes(data)
}

// ParseRoutes decodes a YAML route table
func ParseRoutes(data []byte) (*Routes, error) {
	var file routeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse route table: %w", err)
	}

	def := Authenticated
	if file.Default != "" {
		parsed, err := ParseRequirement(file.Default)
		if err != nil {
			return nil, err
		}
		def = parsed
	}

	r := &Routes{def: def}
	for prefix, name := range file.Views {
		req, err := ParseRequirement(name)
		if err != nil {
			return nil, fmt.Errorf("view %s: %w", prefix, err)
		}
		r.routes = append(r.routes, route{prefix: normalize(prefix), requirement: req})
	}
	sort.Slice(r.routes, func(i, j int) bool {
		if len(r.routes[i].prefix) != len(r.routes[j].prefix) {
			return len(r.routes[i].prefix) > len(r.routes[j].prefix)
		}
		return r.routes[i].prefix < r.routes[j].prefix
	})
	return r, nil
}

// Requirement returns the requirement of the view at p
func (r *Routes) Requirement(p string) Requirement {
	p = normalize(p)
	for _, rt := range r.routes {
		if matches(rt.prefix, p) {
			return rt.requirement
		}
	}
	return r.def
}

// Default returns the requirement of views not listed in the table
func (r *Routes) Default() Requirement {
	return r.def
}

// matches reports whether p is prefix itself or lies below it.
// "/" only matches the root view.
func matches(prefix, p string) bool {
	if prefix == "/" {
		return p == "/"
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
