// Package manifest detects dependencies, frameworks, databases and
// deployment services from the manifest files of a repository.
package manifest

import (
	"path"
	"sort"
	"strings"

	"reposcope/internal/github"
)

// Dependency is one declared package.
type Dependency struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Ecosystem string `json:"ecosystem"`
	Dev       bool   `json:"dev,omitempty"`
	Source    string `json:"source"`
}

// ComposeService is a service declared in a docker-compose file.
type ComposeService struct {
	Name        string   `json:"name"`
	Image       string   `json:"image,omitempty"`
	Build       bool     `json:"build,omitempty"`
	Ports       []string `json:"ports,omitempty"`
	Environment []string `json:"environment,omitempty"`
	DependsOn   []string `json:"dependsOn,omitempty"`
}

// Report summarizes everything recognized in a set of files.
type Report struct {
	Manifests      []string         `json:"manifests"`
	Dependencies   []Dependency     `json:"dependencies"`
	Frameworks     []string         `json:"frameworks"`
	Databases      []string         `json:"databases"`
	ORMs           []string         `json:"orms"`
	Tools          []string         `json:"tools"`
	Infrastructure []string         `json:"infrastructure"`
	Services       []ComposeService `json:"services"`
	EnvVars        []string         `json:"envVars"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// Empty reports whether nothing was detected.
func (r *Report) Empty() bool {
	return len(r.Dependencies) == 0 && len(r.Services) == 0 && len(r.EnvVars) == 0 &&
		len(r.Frameworks) == 0 && len(r.Databases) == 0
}

type parser func(file github.File, r *collector) error

// parserFor returns the parser for a file name, or nil.
func parserFor(p string) parser {
	name := path.Base(p)
	lower := strings.ToLower(name)
	switch {
	case name == "package.json":
		return parsePackageJSON
	case name == "go.mod":
		return parseGoMod
	case name == "Cargo.toml":
		return parseCargo
	case name == "pyproject.toml":
		return parsePyproject
	case lower == "requirements.txt" || (strings.HasPrefix(lower, "requirements") && strings.HasSuffix(lower, ".txt")):
		return parseRequirements
	case (strings.HasPrefix(lower, "docker-compose.") || strings.HasPrefix(lower, "compose.")) &&
		(strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")):
		return parseCompose
	case lower == ".env.example" || lower == ".env.sample" || lower == ".env.template":
		return parseEnvExample
	case name == "Dockerfile" || strings.HasPrefix(name, "Dockerfile."):
		return parseDockerfile
	case strings.HasSuffix(lower, ".prisma"):
		return parsePrisma
	}
	return nil
}

// Detect parses every recognized manifest among files. Parse failures are
// reported as warnings; Detect itself never fails.
func Detect(files []github.File) Report {
	c := newCollector()
	for _, f := range files {
		parse := parserFor(f.Path)
		if parse == nil {
			continue
		}
		c.manifests = append(c.manifests, f.Path)
		if err := parse(f, c); err != nil {
			c.warnings = append(c.warnings, f.Path+": "+err.Error())
		}
	}
	return c.report()
}

// collector accumulates findings with set semantics.
type collector struct {
	manifests []string
	deps      []Dependency
	seenDeps  map[string]bool
	sets      map[Kind]map[string]bool
	services  []ComposeService
	env       map[string]bool
	warnings  []string
}

func newCollector() *collector {
	return &collector{
		seenDeps: make(map[string]bool),
		sets:     make(map[Kind]map[string]bool),
		env:      make(map[string]bool),
	}
}

func (c *collector) addDep(d Dependency) {
	key := d.Ecosystem + ":" + d.Name
	if c.seenDeps[key] {
		return
	}
	c.seenDeps[key] = true
	c.deps = append(c.deps, d)

	if t, ok := lookupPackage(d.Ecosystem, d.Name); ok {
		c.add(t.Kind, t.Label)
	}
}

func (c *collector) add(kind Kind, label string) {
	if c.sets[kind] == nil {
		c.sets[kind] = make(map[string]bool)
	}
	c.sets[kind][label] = true
}

func (c *collector) addEnv(name string) {
	name = strings.TrimSpace(name)
	if name != "" {
		c.env[name] = true
	}
}

func (c *collector) report() Report {
	sort.Slice(c.deps, func(i, j int) bool {
		if c.deps[i].Ecosystem != c.deps[j].Ecosystem {
			return c.deps[i].Ecosystem < c.deps[j].Ecosystem
		}
		return c.deps[i].Name < c.deps[j].Name
	})
	sort.Slice(c.services, func(i, j int) bool { return c.services[i].Name < c.services[j].Name })
	sort.Strings(c.manifests)

	deps := c.deps
	if deps == nil {
		deps = []Dependency{}
	}
	services := c.services
	if services == nil {
		services = []ComposeService{}
	}
	manifests := c.manifests
	if manifests == nil {
		manifests = []string{}
	}

	return Report{
		Manifests:      manifests,
		Dependencies:   deps,
		Frameworks:     sortedKeys(c.sets[KindFramework]),
		Databases:      sortedKeys(c.sets[KindDatabase]),
		ORMs:           sortedKeys(c.sets[KindORM]),
		Tools:          sortedKeys(c.sets[KindTool]),
		Infrastructure: sortedKeys(c.sets[KindInfrastructure]),
		Services:       services,
		EnvVars:        sortedKeys(c.env),
		Warnings:       c.warnings,
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
