package manifest

import (
	"regexp"
	"strings"
)

// Kind classifies a recognized technology.
type Kind string

const (
	KindFramework      Kind = "framework"
	KindDatabase       Kind = "database"
	KindORM            Kind = "orm"
	KindTool           Kind = "tool"
	KindInfrastructure Kind = "infrastructure"
)

// Ecosystems
const (
	EcosystemNPM   = "npm"
	EcosystemGo    = "go"
	EcosystemPyPI  = "pypi"
	EcosystemCargo = "cargo"
)

// Tech is a recognized technology.
type Tech struct {
	Kind  Kind
	Label string
}

var knownPackages = map[string]map[string]Tech{
	EcosystemNPM: {
		"express":                  {KindFramework, "Express"},
		"fastify":                  {KindFramework, "Fastify"},
		"koa":                      {KindFramework, "Koa"},
		"hono":                     {KindFramework, "Hono"},
		"@nestjs/core":             {KindFramework, "NestJS"},
		"react":                    {KindFramework, "React"},
		"next":                     {KindFramework, "Next.js"},
		"vue":                      {KindFramework, "Vue"},
		"nuxt":                     {KindFramework, "Nuxt"},
		"@angular/core":            {KindFramework, "Angular"},
		"svelte":                   {KindFramework, "Svelte"},
		"@sveltejs/kit":            {KindFramework, "SvelteKit"},
		"react-native":             {KindFramework, "React Native"},
		"electron":                 {KindFramework, "Electron"},
		"tailwindcss":              {KindFramework, "Tailwind CSS"},
		"reactflow":                {KindFramework, "React Flow"},
		"@xyflow/react":            {KindFramework, "React Flow"},
		"@apollo/server":           {KindFramework, "Apollo GraphQL"},
		"socket.io":                {KindFramework, "Socket.IO"},
		"pg":                       {KindDatabase, "PostgreSQL"},
		"postgres":                 {KindDatabase, "PostgreSQL"},
		"@neondatabase/serverless": {KindDatabase, "PostgreSQL"},
		"mysql":                    {KindDatabase, "MySQL"},
		"mysql2":                   {KindDatabase, "MySQL"},
		"mongodb":                  {KindDatabase, "MongoDB"},
		"mongoose":                 {KindORM, "Mongoose"},
		"redis":                    {KindDatabase, "Redis"},
		"ioredis":                  {KindDatabase, "Redis"},
		"sqlite3":                  {KindDatabase, "SQLite"},
		"better-sqlite3":           {KindDatabase, "SQLite"},
		"@prisma/client":           {KindORM, "Prisma"},
		"prisma":                   {KindORM, "Prisma"},
		"drizzle-orm":              {KindORM, "Drizzle"},
		"typeorm":                  {KindORM, "TypeORM"},
		"sequelize":                {KindORM, "Sequelize"},
		"typescript":               {KindTool, "TypeScript"},
		"vite":                     {KindTool, "Vite"},
		"webpack":                  {KindTool, "Webpack"},
		"eslint":                   {KindTool, "ESLint"},
		"jest":                     {KindTool, "Jest"},
		"vitest":                   {KindTool, "Vitest"},
		"wrangler":                 {KindInfrastructure, "Cloudflare Workers"},
	},
	EcosystemGo: {
		"github.com/gin-gonic/gin":       {KindFramework, "Gin"},
		"github.com/labstack/echo":       {KindFramework, "Echo"},
		"github.com/gofiber/fiber":       {KindFramework, "Fiber"},
		"github.com/go-chi/chi":          {KindFramework, "Chi"},
		"github.com/gorilla/mux":         {KindFramework, "Gorilla Mux"},
		"google.golang.org/grpc":         {KindFramework, "gRPC"},
		"github.com/spf13/cobra":         {KindTool, "Cobra"},
		"github.com/lib/pq":              {KindDatabase, "PostgreSQL"},
		"github.com/jackc/pgx":           {KindDatabase, "PostgreSQL"},
		"github.com/go-sql-driver/mysql": {KindDatabase, "MySQL"},
		"go.mongodb.org/mongo-driver":    {KindDatabase, "MongoDB"},
		"github.com/redis/go-redis":      {KindDatabase, "Redis"},
		"github.com/go-redis/redis":      {KindDatabase, "Redis"},
		"modernc.org/sqlite":             {KindDatabase, "SQLite"},
		"github.com/mattn/go-sqlite3":    {KindDatabase, "SQLite"},
		"gorm.io/gorm":                   {KindORM, "GORM"},
		"entgo.io/ent":                   {KindORM, "Ent"},
		"github.com/jmoiron/sqlx":        {KindORM, "sqlx"},
	},
	EcosystemPyPI: {
		"django":          {KindFramework, "Django"},
		"flask":           {KindFramework, "Flask"},
		"fastapi":         {KindFramework, "FastAPI"},
		"starlette":       {KindFramework, "Starlette"},
		"celery":          {KindFramework, "Celery"},
		"psycopg2":        {KindDatabase, "PostgreSQL"},
		"psycopg2-binary": {KindDatabase, "PostgreSQL"},
		"psycopg":         {KindDatabase, "PostgreSQL"},
		"asyncpg":         {KindDatabase, "PostgreSQL"},
		"pymysql":         {KindDatabase, "MySQL"},
		"pymongo":         {KindDatabase, "MongoDB"},
		"redis":           {KindDatabase, "Redis"},
		"sqlalchemy":      {KindORM, "SQLAlchemy"},
		"pytest":          {KindTool, "pytest"},
	},
	EcosystemCargo: {
		"actix-web":      {KindFramework, "Actix Web"},
		"axum":           {KindFramework, "Axum"},
		"rocket":         {KindFramework, "Rocket"},
		"tokio":          {KindFramework, "Tokio"},
		"sqlx":           {KindORM, "SQLx"},
		"diesel":         {KindORM, "Diesel"},
		"sea-orm":        {KindORM, "SeaORM"},
		"tokio-postgres": {KindDatabase, "PostgreSQL"},
		"redis":          {KindDatabase, "Redis"},
		"rusqlite":       {KindDatabase, "SQLite"},
	},
}

var goMajorSuffix = regexp.MustCompile(`/v\d+$`)

func lookupPackage(ecosystem, name string) (Tech, bool) {
	table := knownPackages[ecosystem]
	if table == nil {
		return Tech{}, false
	}
	switch ecosystem {
	case EcosystemGo:
		name = goMajorSuffix.ReplaceAllString(name, "")
	case EcosystemPyPI:
		name = strings.ReplaceAll(strings.ToLower(name), "_", "-")
	}
	t, ok := table[name]
	return t, ok
}

// knownImages maps container image names (without registry or tag) to technologies.
var knownImages = map[string]Tech{
	"postgres":              {KindDatabase, "PostgreSQL"},
	"postgis/postgis":       {KindDatabase, "PostgreSQL"},
	"mysql":                 {KindDatabase, "MySQL"},
	"mariadb":               {KindDatabase, "MariaDB"},
	"mongo":                 {KindDatabase, "MongoDB"},
	"redis":                 {KindDatabase, "Redis"},
	"elasticsearch":         {KindDatabase, "Elasticsearch"},
	"rabbitmq":              {KindInfrastructure, "RabbitMQ"},
	"nginx":                 {KindInfrastructure, "Nginx"},
	"traefik":               {KindInfrastructure, "Traefik"},
	"minio/minio":           {KindInfrastructure, "MinIO"},
	"bitnami/kafka":         {KindInfrastructure, "Kafka"},
	"confluentinc/cp-kafka": {KindInfrastructure, "Kafka"},
}

func lookupImage(image string) (Tech, bool) {
	name := image
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, ":"); i > strings.LastIndex(name, "/") {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "docker.io/")
	name = strings.TrimPrefix(name, "library/")
	t, ok := knownImages[name]
	return t, ok
}
