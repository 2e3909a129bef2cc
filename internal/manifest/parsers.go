package manifest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"

	"reposcope/internal/github"
)

type packageJSON struct {
	Name            string            `json:"name"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func parsePackageJSON(f github.File, c *collector) error {
	var pkg packageJSON
	if err := json.Unmarshal([]byte(f.Content), &pkg); err != nil {
		return fmt.Errorf("invalid package.json: %w", err)
	}
	for _, name := range sortedNames(pkg.Dependencies) {
		c.addDep(Dependency{Name: name, Version: pkg.Dependencies[name], Ecosystem: EcosystemNPM, Source: f.Path})
	}
	for _, name := range sortedNames(pkg.DevDependencies) {
		c.addDep(Dependency{Name: name, Version: pkg.DevDependencies[name], Ecosystem: EcosystemNPM, Dev: true, Source: f.Path})
	}
	c.add(KindTool, "npm")
	return nil
}

func parseGoMod(f github.File, c *collector) error {
	mf, err := modfile.ParseLax(f.Path, []byte(f.Content), nil)
	if err != nil {
		return fmt.Errorf("invalid go.mod: %w", err)
	}
	for _, req := range mf.Require {
		if req.Indirect {
			continue
		}
		c.addDep(Dependency{Name: req.Mod.Path, Version: req.Mod.Version, Ecosystem: EcosystemGo, Source: f.Path})
	}
	c.add(KindTool, "Go modules")
	return nil
}

type cargoManifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Dependencies    map[string]interface{} `toml:"dependencies"`
	DevDependencies map[string]interface{} `toml:"dev-dependencies"`
}

func parseCargo(f github.File, c *collector) error {
	var m cargoManifest
	if err := toml.Unmarshal([]byte(f.Content), &m); err != nil {
		return fmt.Errorf("invalid Cargo.toml: %w", err)
	}
	for _, name := range sortedNames(m.Dependencies) {
		c.addDep(Dependency{Name: name, Version: cargoVersion(m.Dependencies[name]), Ecosystem: EcosystemCargo, Source: f.Path})
	}
	for _, name := range sortedNames(m.DevDependencies) {
		c.addDep(Dependency{Name: name, Version: cargoVersion(m.DevDependencies[name]), Ecosystem: EcosystemCargo, Dev: true, Source: f.Path})
	}
	c.add(KindTool, "Cargo")
	return nil
}

// cargoVersion handles both `dep = "1.0"` and `dep = { version = "1.0" }`.
func cargoVersion(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}:
		if s, ok := val["version"].(string); ok {
			return s
		}
	}
	return ""
}

type pyproject struct {
	Project struct {
		Name         string   `toml:"name"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies    map[string]interface{} `toml:"dependencies"`
			DevDependencies map[string]interface{} `toml:"dev-dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func parsePyproject(f github.File, c *collector) error {
	var p pyproject
	if err := toml.Unmarshal([]byte(f.Content), &p); err != nil {
		return fmt.Errorf("invalid pyproject.toml: %w", err)
	}
	for _, spec := range p.Project.Dependencies {
		if name, version := splitRequirement(spec); name != "" {
			c.addDep(Dependency{Name: name, Version: version, Ecosystem: EcosystemPyPI, Source: f.Path})
		}
	}
	for _, name := range sortedNames(p.Tool.Poetry.Dependencies) {
		if strings.EqualFold(name, "python") {
			continue
		}
		c.addDep(Dependency{Name: name, Version: cargoVersion(p.Tool.Poetry.Dependencies[name]), Ecosystem: EcosystemPyPI, Source: f.Path})
	}
	for _, name := range sortedNames(p.Tool.Poetry.DevDependencies) {
		c.addDep(Dependency{Name: name, Version: cargoVersion(p.Tool.Poetry.DevDependencies[name]), Ecosystem: EcosystemPyPI, Dev: true, Source: f.Path})
	}
	return nil
}

var requirementName = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(?:\[[^\]]*\])?\s*(.*)$`)

// splitRequirement splits "fastapi[all]>=0.110 ; python_version>'3.8'"
// into name and version constraint.
func splitRequirement(spec string) (string, string) {
	spec = strings.TrimSpace(spec)
	if i := strings.Index(spec, ";"); i >= 0 {
		spec = strings.TrimSpace(spec[:i])
	}
	m := requirementName.FindStringSubmatch(spec)
	if m == nil {
		return "", ""
	}
	return strings.ToLower(m[1]), strings.TrimSpace(m[2])
}

func parseRequirements(f github.File, c *collector) error {
	scanner := bufio.NewScanner(strings.NewReader(f.Content))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		if name, version := splitRequirement(line); name != "" {
			c.addDep(Dependency{Name: name, Version: version, Ecosystem: EcosystemPyPI, Source: f.Path})
		}
	}
	c.add(KindTool, "pip")
	return scanner.Err()
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image       string      `yaml:"image"`
	Build       interface{} `yaml:"build"`
	Ports       []yaml.Node `yaml:"ports"`
	Environment interface{} `yaml:"environment"`
	DependsOn   interface{} `yaml:"depends_on"`
}

func parseCompose(f github.File, c *collector) error {
	var cf composeFile
	if err := yaml.Unmarshal([]byte(f.Content), &cf); err != nil {
		return fmt.Errorf("invalid compose file: %w", err)
	}

	c.add(KindInfrastructure, "Docker Compose")
	for _, name := range sortedNames(cf.Services) {
		svc := cf.Services[name]
		out := ComposeService{
			Name:        name,
			Image:       svc.Image,
			Build:       svc.Build != nil,
			Environment: keysOf(svc.Environment),
			DependsOn:   keysOf(svc.DependsOn),
		}
		for _, p := range svc.Ports {
			if p.Kind == yaml.ScalarNode {
				out.Ports = append(out.Ports, p.Value)
			} else if p.Kind == yaml.MappingNode {
				out.Ports = append(out.Ports, portMapping(&p))
			}
		}
		for _, env := range out.Environment {
			c.addEnv(env)
		}
		if svc.Image != "" {
			if t, ok := lookupImage(svc.Image); ok {
				c.add(t.Kind, t.Label)
			}
		}
		c.services = append(c.services, out)
	}
	return nil
}

// portMapping renders the long port syntax as "published:target".
func portMapping(n *yaml.Node) string {
	var published, target string
	for i := 0; i+1 < len(n.Content); i += 2 {
		switch n.Content[i].Value {
		case "published":
			published = n.Content[i+1].Value
		case "target":
			target = n.Content[i+1].Value
		}
	}
	if published == "" {
		return target
	}
	return published + ":" + target
}

// keysOf reads compose values that may be a list ("KEY=value", "db") or a
// mapping ({KEY: value}, {db: {condition: ...}}).
func keysOf(v interface{}) []string {
	var out []string
	switch val := v.(type) {
	case []interface{}:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				continue
			}
			key, _, _ := strings.Cut(s, "=")
			out = append(out, strings.TrimSpace(key))
		}
	case map[string]interface{}:
		for k := range val {
			out = append(out, k)
		}
		sort.Strings(out)
	}
	return out
}

func parseEnvExample(f github.File, c *collector) error {
	scanner := bufio.NewScanner(strings.NewReader(f.Content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, _, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		c.addEnv(key)
	}
	return scanner.Err()
}

func parseDockerfile(f github.File, c *collector) error {
	c.add(KindInfrastructure, "Docker")
	scanner := bufio.NewScanner(strings.NewReader(f.Content))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !strings.EqualFold(fields[0], "ENV") {
			continue
		}
		// ENV KEY=value KEY2=value or ENV KEY value
		for _, kv := range fields[1:] {
			key, _, ok := strings.Cut(kv, "=")
			c.addEnv(key)
			if !ok {
				break
			}
		}
	}
	return scanner.Err()
}

var (
	prismaProvider = regexp.MustCompile(`provider\s*=\s*"([a-z]+)"`)
	prismaEnv      = regexp.MustCompile(`env\("([A-Z0-9_]+)"\)`)
)

func parsePrisma(f github.File, c *collector) error {
	c.add(KindORM, "Prisma")
	for _, m := range prismaProvider.FindAllStringSubmatch(f.Content, -1) {
		switch m[1] {
		case "postgresql":
			c.add(KindDatabase, "PostgreSQL")
		case "mysql":
			c.add(KindDatabase, "MySQL")
		case "sqlite":
			c.add(KindDatabase, "SQLite")
		case "mongodb":
			c.add(KindDatabase, "MongoDB")
		case "sqlserver":
			c.add(KindDatabase, "SQL Server")
		}
	}
	for _, m := range prismaEnv.FindAllStringSubmatch(f.Content, -1) {
		c.addEnv(m[1])
	}
	return nil
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
