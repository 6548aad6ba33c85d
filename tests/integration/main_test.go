//go:build integration

package integration

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/clinica-online/accounts/internal/accounts"
	"github.com/clinica-online/accounts/internal/app"
	"github.com/clinica-online/accounts/internal/config"
	"github.com/clinica-online/accounts/internal/testutil"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool
)

// OpenAPI spec path relative to the tests/integration directory.
const openAPISpecPath = "../../api/openapi/openapi.yaml"

// The administrator seeded directly into the database; admin accounts
// can otherwise only be created through an existing administrator.
const (
	rootAdminEmail      = "root@clinica.test"
	rootAdminCredential = "Root1234"
)

// newTestClient creates a client with OpenAPI validation enabled. Use it
// at the beginning of each test that makes API calls.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	return client
}

// newTestClientWithoutValidation creates a client that skips contract
// checks, for tests that intentionally send malformed requests.
func newTestClientWithoutValidation() *testutil.Client {
	return testutil.NewClient(testServer.URL)
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	migrator, err := migrate.New(
		"file://../../migrations",
		pgContainer.ConnectionString,
	)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("run migrations: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			MetricsPort:  "0",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: config.DatabaseConfig{
			URL:             pgContainer.ConnectionString,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 3,
			StoreTimeout:    5 * time.Second,
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
		},
		JWT: config.JWTConfig{
			SecretKey:     "test-secret-key",
			TokenDuration: 15 * time.Minute,
		},
		Cookie: config.CookieConfig{
			Secure: false,
			Domain: "",
		},
		Auth: config.AuthConfig{
			BcryptCost: bcrypt.MinCost,
			// Throttling off: tests hammer the login endpoint.
			LoginAttemptsPerMinute: 0,
		},
		// No asset store configured: uploads go to the noop store.
		// Notifications disabled so tests do not depend on SMTP.
		Notifications: config.NotificationsConfig{
			Enabled: false,
		},
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	if err := seedRootAdmin(ctx); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	testServer = httptest.NewServer(application.Router())

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}

func seedRootAdmin(ctx context.Context) error {
	hash, err := accounts.HashCredential(rootAdminCredential, bcrypt.MinCost)
	if err != nil {
		return err
	}

	_, err = testDB.Exec(ctx, `
		INSERT INTO accounts (role, name, surname, email, national_id,
			credential_hash, credential_digest, email_verified, approved,
			specialty, age)
		VALUES ('administrator', 'Root', 'Admin', $1, 20000001, $2, $3, TRUE, TRUE, 'administrador', 45)`,
		rootAdminEmail, hash, accounts.CredentialDigest(rootAdminCredential))
	return err
}

// verificationTokenFor reads the pending token issued for an account.
func verificationTokenFor(t *testing.T, accountID int64) string {
	t.Helper()

	var token string
	err := testDB.QueryRow(context.Background(),
		`SELECT token FROM verification_tokens WHERE account_id = $1 ORDER BY created_at DESC LIMIT 1`,
		accountID).Scan(&token)
	require.NoError(t, err, "no verification token for account %d", accountID)
	return token
}

// verifyEmail walks the emailed verification link for an account.
func verifyEmail(t *testing.T, client *testutil.Client, accountID int64) {
	t.Helper()

	token := verificationTokenFor(t, accountID)
	resp, err := client.GET("/api/v1/auth/verify-email?token=" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
}
