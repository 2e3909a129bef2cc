package manifest

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"reposcope/internal/github"
)

const packageJSONFixture = `{
  "name": "web",
  "dependencies": {
    "express": "^4.18.2",
    "react": "^18.2.0",
    "pg": "^8.11.0",
    "drizzle-orm": "^0.29.0"
  },
  "devDependencies": {
    "typescript": "^5.3.0",
    "vite": "^5.0.0"
  }
}`

const goModFixture = `module example.com/api

go 1.22

require (
	github.com/gin-gonic/gin v1.9.1
	github.com/redis/go-redis/v9 v9.3.0
	golang.org/x/sys v0.15.0 // indirect
)
`

const composeFixture = `services:
  api:
    build: .
    ports:
      - "8080:8080"
    environment:
      - DATABASE_URL=postgres://db/app
      - REDIS_URL
    depends_on:
      - db
      - cache
  db:
    image: postgres:16-alpine
    environment:
      POSTGRES_PASSWORD: secret
  cache:
    image: redis:7
    ports:
      - published: 6379
        target: 6379
`

func TestDetect_JavaScriptAndGo(t *testing.T) {
	report := Detect([]github.File{
		{Path: "package.json", Content: packageJSONFixture},
		{Path: "server/go.mod", Content: goModFixture},
		{Path: "src/index.ts", Content: "console.log('x')"},
	})

	if diff := cmp.Diff([]string{"package.json", "server/go.mod"}, report.Manifests); diff != "" {
		t.Errorf("Manifests mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Express", "Gin", "React"}, report.Frameworks); diff != "" {
		t.Errorf("Frameworks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"PostgreSQL", "Redis"}, report.Databases); diff != "" {
		t.Errorf("Databases mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Drizzle"}, report.ORMs); diff != "" {
		t.Errorf("ORMs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Go modules", "TypeScript", "Vite", "npm"}, report.Tools); diff != "" {
		t.Errorf("Tools mismatch (-want +got):\n%s", diff)
	}

	var goDeps, devDeps int
	for _, d := range report.Dependencies {
		if d.Ecosystem == EcosystemGo {
			goDeps++
			if d.Name == "golang.org/x/sys" {
				t.Error("indirect requirements should be skipped")
			}
		}
		if d.Dev {
			devDeps++
		}
	}
	if goDeps != 2 || devDeps != 2 {
		t.Errorf("goDeps = %d, devDeps = %d", goDeps, devDeps)
	}
}

func TestDetect_Compose(t *testing.T) {
	report := Detect([]github.File{{Path: "docker-compose.yml", Content: composeFixture}})

	want := []ComposeService{
		{
			Name:        "api",
			Build:       true,
			Ports:       []string{"8080:8080"},
			Environment: []string{"DATABASE_URL", "REDIS_URL"},
			DependsOn:   []string{"db", "cache"},
		},
		{Name: "cache", Image: "redis:7", Ports: []string{"6379:6379"}},
		{Name: "db", Image: "postgres:16-alpine", Environment: []string{"POSTGRES_PASSWORD"}},
	}
	if diff := cmp.Diff(want, report.Services); diff != "" {
		t.Errorf("Services mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"DATABASE_URL", "POSTGRES_PASSWORD", "REDIS_URL"}, report.EnvVars); diff != "" {
		t.Errorf("EnvVars mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"PostgreSQL", "Redis"}, report.Databases); diff != "" {
		t.Errorf("Databases mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Docker Compose"}, report.Infrastructure); diff != "" {
		t.Errorf("Infrastructure mismatch (-want +got):\n%s", diff)
	}
}

func TestDetect_PythonAndRust(t *testing.T) {
	report := Detect([]github.File{
		{Path: "requirements.txt", Content: "# web\nFastAPI[all]>=0.110\npsycopg2-binary==2.9.9 ; python_version > '3.8'\n-r dev.txt\n\nSQLAlchemy\n"},
		{Path: "pyproject.toml", Content: "[project]\nname = \"svc\"\ndependencies = [\"celery>=5\", \"redis\"]\n"},
		{Path: "Cargo.toml", Content: "[package]\nname = \"x\"\n\n[dependencies]\naxum = \"0.7\"\ntokio = { version = \"1\", features = [\"full\"] }\n"},
	})

	if diff := cmp.Diff([]string{"Axum", "Celery", "FastAPI", "Tokio"}, report.Frameworks); diff != "" {
		t.Errorf("Frameworks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"PostgreSQL", "Redis"}, report.Databases); diff != "" {
		t.Errorf("Databases mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"SQLAlchemy"}, report.ORMs); diff != "" {
		t.Errorf("ORMs mismatch (-want +got):\n%s", diff)
	}

	for _, d := range report.Dependencies {
		if d.Name == "tokio" && d.Version != "1" {
			t.Errorf("tokio version = %q, want 1", d.Version)
		}
		if d.Name == "fastapi" && d.Version != ">=0.110" {
			t.Errorf("fastapi version = %q", d.Version)
		}
	}
}

func TestDetect_EnvAndDockerfile(t *testing.T) {
	report := Detect([]github.File{
		{Path: ".env.example", Content: "# keys\nGEMINI_API_KEY=\nexport GITHUB_TOKEN=xxx\nnot a var\n"},
		{Path: "Dockerfile", Content: "FROM golang:1.22\nENV PORT=8080 GIN_MODE=release\nENV APP_HOME /app\n"},
		{Path: "prisma/schema.prisma", Content: "datasource db {\n  provider = \"postgresql\"\n  url = env(\"DATABASE_URL\")\n}\n"},
	})

	want := []string{"APP_HOME", "DATABASE_URL", "GEMINI_API_KEY", "GIN_MODE", "GITHUB_TOKEN", "PORT"}
	if diff := cmp.Diff(want, report.EnvVars); diff != "" {
		t.Errorf("EnvVars mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Docker"}, report.Infrastructure); diff != "" {
		t.Errorf("Infrastructure mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"PostgreSQL"}, report.Databases); diff != "" {
		t.Errorf("Databases mismatch (-want +got):\n%s", diff)
	}
}

func TestDetect_InvalidManifestIsWarning(t *testing.T) {
	report := Detect([]github.File{{Path: "package.json", Content: "{not json"}})

	if len(report.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want one", report.Warnings)
	}
	if !report.Empty() {
		t.Error("report should be empty")
	}
	if report.Dependencies == nil || report.Services == nil {
		t.Error("slices should be non-nil")
	}
}

func TestLookupImage(t *testing.T) {
	tests := map[string]string{
		"postgres":                    "PostgreSQL",
		"postgres:16":                 "PostgreSQL",
		"docker.io/library/redis:7":   "Redis",
		"bitnami/kafka:3.6":           "Kafka",
		"mongo@sha256:abcdef":         "MongoDB",
		"localhost:5000/custom/image": "",
	}
	for image, want := range tests {
		got, ok := lookupImage(image)
		if want == "" {
			if ok {
				t.Errorf("lookupImage(%q) = %v, want no match", image, got)
			}
			continue
		}
		if !ok || got.Label != want {
			t.Errorf("lookupImage(%q) = %v, want %s", image, got, want)
		}
	}
}
