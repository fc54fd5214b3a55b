package runboard_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"

	runboard "github.com/goliatone/go-runboard"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// capturingSink records every activity event for assertions.
type capturingSink struct {
	events []runboard.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt runboard.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

// capturingMailer records outbound messages; optionally fails every send.
type capturingMailer struct {
	messages []runboard.Message
	err      error
}

func (m *capturingMailer) Send(_ context.Context, msg runboard.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	applyMigrations(t, db)

	t.Cleanup(func() { db.Close() })

	return db
}

func applyMigrations(t *testing.T, db *bun.DB) {
	t.Helper()

	migrations := runboard.GetMigrationsFS()
	err := fs.WalkDir(migrations, "data/sql/migrations/sqlite", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return nil
		}
		raw, err := fs.ReadFile(migrations, path)
		if err != nil {
			return err
		}
		_, err = db.ExecContext(context.Background(), string(raw))
		return err
	})
	require.NoError(t, err)
}

func clockAt(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

const testPassword = "password-123456"

var (
	testPasswordHashOnce sync.Once
	testPasswordHash     string
)

// sharedPasswordHash hashes the fixture password once; the cost parameter
// makes per-test hashing too slow.
func sharedPasswordHash(t *testing.T) string {
	t.Helper()
	testPasswordHashOnce.Do(func() {
		hash, err := runboard.HashPassword(testPassword)
		if err != nil {
			panic(err)
		}
		testPasswordHash = hash
	})
	return testPasswordHash
}

func createTestUser(t *testing.T, repo runboard.RepositoryManager, role runboard.UserRole) *runboard.User {
	t.Helper()

	id := uuid.New()
	user, err := repo.Users().Register(context.Background(), &runboard.User{
		ID:           id,
		Username:     "user-" + id.String()[:8],
		Email:        "user-" + id.String()[:8] + "@example.com",
		PasswordHash: sharedPasswordHash(t),
		Role:         role,
	})
	require.NoError(t, err)
	require.Equal(t, role, user.Role)

	return user
}
