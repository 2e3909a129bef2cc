// Package auth implements accounts, sessions and request throttling.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	rserrors "reposcope/internal/errors"
	"reposcope/internal/storage"
)

// UserStore is the subset of storage.Store the manager needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*storage.User, error)
	GetUserByUsername(ctx context.Context, username string) (*storage.User, error)
	GetUserByID(ctx context.Context, id int64) (*storage.User, error)
}

// ManagerConfig configures the auth manager
type ManagerConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// Session is the result of a successful register or login.
type Session struct {
	User      *storage.User `json:"user"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// Manager handles registration, login and token verification
type Manager struct {
	store  UserStore
	tokens *TokenIssuer
	cost   int
	logger *slog.Logger
}

// NewManager creates a new auth manager
func NewManager(store UserStore, config ManagerConfig, logger *slog.Logger) *Manager {
	cost := config.BcryptCost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	return &Manager{
		store:  store,
		tokens: NewTokenIssuer(config.JWTSecret, config.TokenTTL),
		cost:   cost,
		logger: logger,
	}
}

// Tokens returns the token issuer.
func (m *Manager) Tokens() *TokenIssuer { return m.tokens }

// Register creates an account and opens a session for it.
func (m *Manager) Register(ctx context.Context, c Credentials) (*Session, error) {
	c.Username = strings.TrimSpace(c.Username)
	if err := ValidateCredentials(c); err != nil {
		return nil, err
	}

	user, err := m.createUser(ctx, c.Username, c.Password)
	if err != nil {
		return nil, err
	}

	m.logger.Info("User registered", "user_id", user.ID, "username", user.Username)
	return m.session(user)
}

func (m *Manager) createUser(ctx context.Context, username, password string) (*storage.User, error) {
	hash, err := HashPassword(password, m.cost)
	if err != nil {
		return nil, rserrors.New(rserrors.InternalError, "failed to hash password", err)
	}
	user, err := m.store.CreateUser(ctx, username, hash)
	if errors.Is(err, storage.ErrUsernameTaken) {
		return nil, rserrors.New(rserrors.Conflict, "username already taken", err)
	}
	if err != nil {
		return nil, rserrors.New(rserrors.InternalError, "failed to create user", err)
	}
	return user, nil
}

// Login verifies a username and password. Unknown users and wrong passwords
// produce the same error.
func (m *Manager) Login(ctx context.Context, c Credentials) (*Session, error) {
	user, err := m.store.GetUserByUsername(ctx, strings.TrimSpace(c.Username))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, rserrors.New(rserrors.Unauthorized, "invalid username or password", nil)
	}
	if err != nil {
		return nil, rserrors.New(rserrors.InternalError, "failed to look up user", err)
	}
	if !CheckPassword(user.PasswordHash, c.Password) {
		m.logger.Debug("Login rejected", "username", user.Username)
		return nil, rserrors.New(rserrors.Unauthorized, "invalid username or password", nil)
	}
	return m.session(user)
}

func (m *Manager) session(user *storage.User) (*Session, error) {
	token, exp, err := m.tokens.Issue(user)
	if err != nil {
		return nil, rserrors.New(rserrors.InternalError, "failed to issue session", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}

// Authenticate validates a session token and loads its user.
func (m *Manager) Authenticate(ctx context.Context, token string) (*storage.User, error) {
	if token == "" {
		return nil, rserrors.New(rserrors.Unauthorized, "authentication required", nil)
	}
	claims, err := m.tokens.Parse(token)
	if err != nil {
		return nil, rserrors.New(rserrors.Unauthorized, "invalid or expired session", err)
	}
	id, _ := claims.UserID()
	user, err := m.store.GetUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, rserrors.New(rserrors.Unauthorized, "session user no longer exists", err)
	}
	if err != nil {
		return nil, rserrors.New(rserrors.InternalError, "failed to load session user", err)
	}
	return user, nil
}

// AddUser creates an account without opening a session.
func (m *Manager) AddUser(ctx context.Context, username, password string) (*storage.User, error) {
	username = strings.TrimSpace(username)
	if err := ValidateCredentials(Credentials{Username: username, Password: password}); err != nil {
		return nil, err
	}
	return m.createUser(ctx, username, password)
}

// SeedUser is one entry of a users file
type SeedUser struct {
	Username string `toml:"username"`
	Password string `toml:"password"` // supports ${ENV} expansion
}

type seedFile struct {
	Users []SeedUser `toml:"users"`
}

// LoadSeedUsers reads a TOML file of [[users]] tables.
func LoadSeedUsers(path string) ([]SeedUser, error) {
	var f seedFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("read users file %s: %w", path, err)
	}
	for i := range f.Users {
		f.Users[i].Password = expandEnvVars(f.Users[i].Password)
	}
	return f.Users, nil
}

// SeedUsers creates the accounts listed in path. Existing usernames are left
// untouched. It returns the number of accounts created.
func (m *Manager) SeedUsers(ctx context.Context, path string) (int, error) {
	users, err := LoadSeedUsers(path)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, u := range users {
		if u.Password == "" {
			m.logger.Warn("Skipping seed user with empty password", "username", u.Username)
			continue
		}
		_, err := m.AddUser(ctx, u.Username, u.Password)
		if rserrors.Is(err, rserrors.Conflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed user %q: %w", u.Username, err)
		}
		created++
	}

	if created > 0 {
		m.logger.Info("Seeded users", "count", created, "file", path)
	}
	return created, nil
}

// expandEnvVars expands ${VAR} or $VAR in a string
func expandEnvVars(s string) string {
	// Handle ${VAR} format
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	// Handle $VAR format
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}
