package github

import (
	"path"
	"sort"
	"strings"
)

var excludedDirs = map[string]bool{
	"node_modules": true, "vendor": true, "dist": true, "build": true, "out": true,
	".git": true, ".next": true, ".nuxt": true, "coverage": true, "__pycache__": true,
	"target": true, "bin": true, "obj": true, ".venv": true, "venv": true,
	".idea": true, ".vscode": true, "third_party": true, "Pods": true,
}

var lockFiles = map[string]bool{
	"package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true, "go.sum": true,
	"Cargo.lock": true, "poetry.lock": true, "Gemfile.lock": true, "composer.lock": true,
}

var excludedExts = map[string]bool{
	".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true,
	".svg": true, ".webp": true, ".avif": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".zip": true, ".tar": true, ".gz": true, ".tgz": true, ".bz2": true, ".xz": true, ".7z": true, ".rar": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true, ".class": true,
	".jar": true, ".war": true, ".wasm": true, ".pyc": true, ".bin": true, ".dat": true,
	".mp3": true, ".mp4": true, ".wav": true, ".mov": true, ".avi": true, ".webm": true, ".ogg": true,
	".pdf": true, ".psd": true, ".sqlite": true, ".db": true,
}

var sourceExts = map[string]bool{
	".go": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".cjs": true,
	".py": true, ".rb": true, ".java": true, ".kt": true, ".scala": true, ".rs": true,
	".php": true, ".cs": true, ".swift": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true,
	".vue": true, ".svelte": true, ".ex": true, ".exs": true, ".dart": true, ".sql": true,
	".graphql": true, ".proto": true, ".sh": true, ".yaml": true, ".yml": true, ".toml": true,
}

var manifestNames = map[string]bool{
	"package.json": true, "go.mod": true, "requirements.txt": true, "pyproject.toml": true,
	"Cargo.toml": true, "pom.xml": true, "build.gradle": true, "build.gradle.kts": true,
	"Gemfile": true, "composer.json": true, "Dockerfile": true, "schema.sql": true,
	"tsconfig.json": true, "wrangler.toml": true, ".env.example": true, "setup.py": true,
}

var entryStems = map[string]bool{"main": true, "index": true, "app": true, "server": true}

const (
	scoreManifest = 100
	scoreReadme   = 90
	scoreEntry    = 80
	scoreRoutes   = 70
	scoreModels   = 65
	scoreCore     = 50
	scoreSource   = 30
	penaltyTest   = 20
	penaltyDepth  = 3
)

// SelectFiles picks the files most likely to explain a repository's
// architecture. The result is ordered by descending score, then path.
func SelectFiles(entries []TreeEntry, maxFiles, maxFileBytes int) []TreeEntry {
	type scored struct {
		entry TreeEntry
		score int
	}

	var candidates []scored
	for _, e := range entries {
		if e.Type != EntryBlob {
			continue
		}
		if maxFileBytes > 0 && e.Size > maxFileBytes {
			continue
		}
		if isExcluded(e.Path) {
			continue
		}
		s, ok := scoreFile(e.Path)
		if !ok {
			continue
		}
		candidates = append(candidates, scored{entry: e, score: s})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].entry.Path < candidates[j].entry.Path
	})

	if maxFiles > 0 && len(candidates) > maxFiles {
		candidates = candidates[:maxFiles]
	}

	out := make([]TreeEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}

func isExcluded(p string) bool {
	dirs := strings.Split(p, "/")
	for _, d := range dirs[:len(dirs)-1] {
		if excludedDirs[d] {
			return true
		}
	}

	name := path.Base(p)
	lower := strings.ToLower(name)
	if lockFiles[name] {
		return true
	}
	if strings.HasSuffix(lower, ".min.js") || strings.HasSuffix(lower, ".min.css") || strings.HasSuffix(lower, ".d.ts") {
		return true
	}
	return excludedExts[strings.ToLower(path.Ext(name))]
}

// scoreFile returns the selection score of a path, or false when the file
// is neither a manifest, documentation nor source.
func scoreFile(p string) (int, bool) {
	name := path.Base(p)
	lower := strings.ToLower(name)
	ext := strings.ToLower(path.Ext(name))
	depth := strings.Count(p, "/")

	var score int
	switch {
	case isManifest(p, name, lower):
		score = scoreManifest
	case strings.HasPrefix(lower, "readme"):
		score = scoreReadme
	case !sourceExts[ext]:
		return 0, false
	case isEntryPoint(p, lower):
		score = scoreEntry
	case inDir(p, "routes", "api", "controllers", "handlers", "endpoints"):
		score = scoreRoutes
	case inDir(p, "models", "schema", "db", "entities"):
		score = scoreModels
	case inDir(p, "services", "lib", "core", "internal"):
		score = scoreCore
	default:
		score = scoreSource
	}

	if isTest(p, lower) {
		score -= penaltyTest
	}
	score -= depth * penaltyDepth
	return score, true
}

func isManifest(p, name, lower string) bool {
	if manifestNames[name] {
		return true
	}
	switch {
	case strings.HasPrefix(lower, "docker-compose.") || strings.HasPrefix(lower, "compose."):
		return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
	case strings.HasSuffix(lower, ".prisma"):
		return true
	case strings.HasPrefix(lower, "vite.config.") || strings.HasPrefix(lower, "next.config."):
		return true
	case strings.HasSuffix(lower, ".sql") && inDir(p, "migrations"):
		return true
	}
	return false
}

func isEntryPoint(p, lower string) bool {
	stem := strings.TrimSuffix(lower, path.Ext(lower))
	if entryStems[stem] {
		return true
	}
	parts := strings.Split(p, "/")
	return len(parts) == 3 && parts[0] == "cmd" && lower == "main.go"
}

func inDir(p string, names ...string) bool {
	dirs := strings.Split(strings.ToLower(p), "/")
	for _, d := range dirs[:len(dirs)-1] {
		for _, n := range names {
			if d == n {
				return true
			}
		}
	}
	return false
}

func isTest(p, lower string) bool {
	if strings.Contains(lower, "_test.") || strings.Contains(lower, ".test.") || strings.Contains(lower, ".spec.") {
		return true
	}
	if strings.HasPrefix(lower, "test_") {
		return true
	}
	return inDir(p, "test", "tests", "__tests__", "spec")
}

// truncateContent caps content at maxChars bytes, cutting on a
// line boundary when one is close.
func truncateContent(content string, maxChars int) (string, bool) {
	if maxChars <= 0 || len(content) <= maxChars {
		return content, false
	}
	cut := content[:maxChars]
	if i := strings.LastIndexByte(cut, '\n'); i > maxChars/2 {
		cut = cut[:i+1]
	}
	cut = strings.ToValidUTF8(cut, "")
	return cut + "\n... [truncated]\n", true
}
