//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/ByAncort/JwtAuth/config"
	"github.com/ByAncort/JwtAuth/internal/db"
	"github.com/ByAncort/JwtAuth/internal/server"
	"github.com/ByAncort/JwtAuth/internal/token"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const serverPort = 18080

var testSecret = base64.StdEncoding.EncodeToString(
	[]byte("0123456789abcdef0123456789abcdef0123456789abcdef"),
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	setTestEnv()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAuthLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("juan_%d", time.Now().UnixNano())
	email := username + "@x.com"
	password := "pw123"

	signupResult, status, err := signup(t, baseURL, username, email, password)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("signup status %d", status)
	}
	if signupResult.Token == "" {
		t.Fatalf("signup returned empty token")
	}
	if !signupResult.IssuedAt.Before(signupResult.Expiration) {
		t.Fatalf("issuedAt %v not before expiration %v", signupResult.IssuedAt, signupResult.Expiration)
	}

	if count := countUsers(t, username); count != 1 {
		t.Fatalf("expected exactly one user %q, found %d", username, count)
	}

	_, status, err = signup(t, baseURL, username, "other@x.com", password)
	if err != nil {
		t.Fatalf("duplicate signup: %v", err)
	}
	if status != http.StatusBadRequest {
		t.Fatalf("duplicate signup status %d, want 400", status)
	}
	if count := countUsers(t, username); count != 1 {
		t.Fatalf("duplicate signup created a second user for %q", username)
	}

	signinResult, status, err := signin(t, baseURL, username, password)
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("signin status %d", status)
	}
	if signinResult.Token == "" || signinResult.Token == signupResult.Token {
		t.Fatalf("signin should mint a fresh token")
	}

	_, status, err = signin(t, baseURL, username, "wrongpw")
	if err != nil {
		t.Fatalf("bad signin: %v", err)
	}
	if status != http.StatusUnauthorized {
		t.Fatalf("bad signin status %d, want 401", status)
	}

	validation, status, err := validate(t, baseURL, signinResult.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("validate status %d", status)
	}
	if !validation.Valid || validation.Username != username {
		t.Fatalf("unexpected validation payload: %+v", validation)
	}

	expired, err := mintExpiredToken(username)
	if err != nil {
		t.Fatalf("mint expired token: %v", err)
	}
	_, status, err = validate(t, baseURL, expired)
	if err != nil {
		t.Fatalf("validate expired: %v", err)
	}
	if status != http.StatusUnauthorized {
		t.Fatalf("expired token status %d, want 401", status)
	}
}

type authResult struct {
	Token      string    `json:"token"`
	IssuedAt   time.Time `json:"issuedAt"`
	Expiration time.Time `json:"expiration"`
}

type validationResult struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

func signup(t *testing.T, baseURL, username, email, password string) (authResult, int, error) {
	t.Helper()
	payload := map[string]string{"username": username, "email": email, "password": password}
	return postAuth(baseURL+"/api/auth/v1/rest/signup", payload)
}

func signin(t *testing.T, baseURL, username, password string) (authResult, int, error) {
	t.Helper()
	payload := map[string]string{"username": username, "password": password}
	return postAuth(baseURL+"/api/auth/v1/rest/signin", payload)
}

func postAuth(url string, payload map[string]string) (authResult, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return authResult{}, 0, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return authResult{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return authResult{}, resp.StatusCode, nil
	}

	var parsed authResult
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return authResult{}, resp.StatusCode, err
	}
	return parsed, resp.StatusCode, nil
}

func validate(t *testing.T, baseURL, tokenString string) (validationResult, int, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/auth/v1/rest/validate", nil)
	if err != nil {
		return validationResult{}, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+tokenString)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return validationResult{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return validationResult{}, resp.StatusCode, nil
	}

	var parsed validationResult
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return validationResult{}, resp.StatusCode, err
	}
	return parsed, resp.StatusCode, nil
}

// mintExpiredToken signs a token with the server's secret but a 1ms TTL so
// its signature is valid and only the expiry check fails.
func mintExpiredToken(username string) (string, error) {
	codec, err := token.NewCodec(testSecret, time.Millisecond)
	if err != nil {
		return "", err
	}
	signed, _, err := codec.Mint(username, nil)
	if err != nil {
		return "", err
	}
	time.Sleep(25 * time.Millisecond)
	return signed, nil
}

func countUsers(t *testing.T, username string) int {
	t.Helper()

	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.PostgresURL(cfg))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(1) FROM users WHERE username = $1", username).Scan(&count); err != nil {
		t.Fatalf("count users: %v", err)
	}
	return count
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	dsn := db.PostgresURL(cfg)

	for {
		conn, err := sql.Open("postgres", dsn)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = conn.PingContext(pingCtx)
			cancel()
			_ = conn.Close()
			if err == nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	for {
		resp, err := http.Get(url)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := db.PostgresURL(cfg)

	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setTestEnv() {
	_ = os.Setenv("JWT_SECRET", testSecret)
	_ = os.Setenv("JWT_EXPIRATION_MS", "3600000")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "authjwt")
	_ = os.Setenv("DB_PASSWORD", "authjwt")
	_ = os.Setenv("DB_NAME", "authjwt")
	_ = os.Setenv("DB_USE_SSL", "false")
}

func startServer() (*server.Server, error) {
	cfg := config.LoadConfig()
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
