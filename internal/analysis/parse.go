package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseResponse extracts an Analysis from raw model output, repairing the
// JSON when the first decode fails. The result is normalized.
func ParseResponse(raw string) (*Analysis, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var a Analysis
	if err := decodeFirst(body, &a); err != nil {
		repaired := repairJSON(body)
		a = Analysis{}
		if err2 := decodeFirst(repaired, &a); err2 != nil {
			return nil, fmt.Errorf("parse model response: %w", err)
		}
	}

	Normalize(&a)
	return &a, nil
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	slug := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if slug == "" {
		return "component"
	}
	return slug
}

// Normalize makes an analysis safe to render: every slice is non-nil,
// components have unique ids, connections only reference known components,
// HTTP methods are upper case and difficulties use the fixed vocabulary.
func Normalize(a *Analysis) {
	if a.Repository.Topics == nil {
		a.Repository.Topics = []string{}
	}
	normalizeArchitecture(&a.Architecture)

	if a.APIEndpoints == nil {
		a.APIEndpoints = []APIEndpoint{}
	}
	for i := range a.APIEndpoints {
		m := strings.ToUpper(strings.TrimSpace(a.APIEndpoints[i].Method))
		if m == "" {
			m = "GET"
		}
		a.APIEndpoints[i].Method = m
	}

	ts := &a.TechStack
	ts.Languages = nonNil(ts.Languages)
	ts.Frameworks = nonNil(ts.Frameworks)
	ts.Databases = nonNil(ts.Databases)
	ts.Tools = nonNil(ts.Tools)
	ts.Infrastructure = nonNil(ts.Infrastructure)

	if a.Database.Tables == nil {
		a.Database.Tables = []Table{}
	}
	for i := range a.Database.Tables {
		t := &a.Database.Tables[i]
		if t.Columns == nil {
			t.Columns = []Column{}
		}
		if t.Relations == nil {
			t.Relations = []Relation{}
		}
	}

	if a.Services == nil {
		a.Services = []ServiceInfo{}
	}
	for i := range a.Services {
		a.Services[i].Dependencies = nonNil(a.Services[i].Dependencies)
	}

	if a.EnvironmentVariables == nil {
		a.EnvironmentVariables = []EnvironmentVariable{}
	}

	if a.ContributionSuggestions == nil {
		a.ContributionSuggestions = []ContributionSuggestion{}
	}
	for i := range a.ContributionSuggestions {
		s := &a.ContributionSuggestions[i]
		s.Difficulty = normalizeDifficulty(s.Difficulty)
		s.Files = nonNil(s.Files)
	}

	if a.KeyFiles == nil {
		a.KeyFiles = []KeyFile{}
	}
	a.Meta.Warnings = nonNil(a.Meta.Warnings)
}

func normalizeArchitecture(arch *Architecture) {
	if arch.Components == nil {
		arch.Components = []Component{}
	}

	used := make(map[string]bool, len(arch.Components))
	// aliases resolves connection endpoints written as names instead of ids
	aliases := make(map[string]string, len(arch.Components)*2)

	for i := range arch.Components {
		c := &arch.Components[i]
		c.Technologies = nonNil(c.Technologies)
		c.Files = nonNil(c.Files)
		c.Type = strings.ToLower(strings.TrimSpace(c.Type))
		if c.Type == "" {
			c.Type = "service"
		}

		id := strings.TrimSpace(c.ID)
		if id == "" {
			id = slugify(c.Name)
		}
		base := id
		for n := 2; used[id]; n++ {
			id = base + "-" + strconv.Itoa(n)
		}
		used[id] = true
		if c.ID != "" && c.ID != id {
			// keep the first component the original id referred to
			if _, ok := aliases[c.ID]; !ok {
				aliases[c.ID] = id
			}
		}
		c.ID = id
		if c.Name == "" {
			c.Name = id
		}
		aliases[id] = id
		if _, ok := aliases[strings.ToLower(c.Name)]; !ok {
			aliases[strings.ToLower(c.Name)] = id
		}
	}

	conns := make([]Connection, 0, len(arch.Connections))
	seen := make(map[string]bool, len(arch.Connections))
	for _, conn := range arch.Connections {
		src, ok1 := resolve(aliases, conn.Source)
		dst, ok2 := resolve(aliases, conn.Target)
		if !ok1 || !ok2 {
			continue
		}
		key := src + "->" + dst + ":" + conn.Label
		if seen[key] {
			continue
		}
		seen[key] = true
		conn.Source, conn.Target = src, dst
		conn.Type = strings.ToLower(strings.TrimSpace(conn.Type))
		conns = append(conns, conn)
	}
	arch.Connections = conns
}

func resolve(aliases map[string]string, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if id, ok := aliases[ref]; ok {
		return id, true
	}
	id, ok := aliases[strings.ToLower(ref)]
	return id, ok
}

func normalizeDifficulty(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "beginner", "easy", "good first issue", "starter":
		return DifficultyBeginner
	case "advanced", "hard", "expert", "difficult":
		return DifficultyAdvanced
	default:
		return DifficultyIntermediate
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
