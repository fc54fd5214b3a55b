package runboard_test

import (
	"context"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	runboard "github.com/goliatone/go-runboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	signingKey      string
	issuer          string
	audience        []string
	tokenExpiration int
	baseURL         string
}

func (c testConfig) GetSigningKey() string   { return c.signingKey }
func (c testConfig) GetIssuer() string       { return c.issuer }
func (c testConfig) GetAudience() []string   { return c.audience }
func (c testConfig) GetTokenExpiration() int { return c.tokenExpiration }
func (c testConfig) GetBaseURL() string      { return c.baseURL }

func defaultTestConfig() testConfig {
	return testConfig{
		signingKey:      "test-signing-key",
		issuer:          "runboard-test",
		audience:        []string{"runboard"},
		tokenExpiration: 1,
		baseURL:         "http://test.local",
	}
}

func TestLoginMintsValidSession(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	auther := runboard.NewAuthenticator(repo.Users(), defaultTestConfig()).WithLogger(testLogger{})

	user := createTestUser(t, repo, runboard.RoleConfirmed)

	raw, err := auther.Login(ctx, user.Email, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := auther.SessionFromToken(raw)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UID)
	assert.Equal(t, string(runboard.RoleConfirmed), claims.UserRole)
	assert.Equal(t, "runboard-test", claims.Issuer)

	// username works as an identifier too
	raw, err = auther.Login(ctx, user.Username, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	auther := runboard.NewAuthenticator(repo.Users(), defaultTestConfig()).WithLogger(testLogger{})

	user := createTestUser(t, repo, runboard.RoleConfirmed)

	_, err := auther.Login(ctx, user.Email, "wrong-password-entirely")
	require.ErrorIs(t, err, runboard.ErrMismatchedHashAndPassword)

	// an unknown identifier is indistinguishable from a wrong password
	_, err = auther.Login(ctx, "nobody@example.com", testPassword)
	require.ErrorIs(t, err, runboard.ErrMismatchedHashAndPassword)
}

func TestLoginRejectsBannedAccounts(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	auther := runboard.NewAuthenticator(repo.Users(), defaultTestConfig()).WithLogger(testLogger{})

	user := createTestUser(t, repo, runboard.RoleBanned)

	_, err := auther.Login(ctx, user.Email, testPassword)
	require.ErrorIs(t, err, runboard.ErrUserBanned)
}

func TestSessionFromTokenRejectsTampering(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	auther := runboard.NewAuthenticator(repo.Users(), defaultTestConfig()).WithLogger(testLogger{})

	user := createTestUser(t, repo, runboard.RoleConfirmed)

	raw, err := auther.Login(ctx, user.Email, testPassword)
	require.NoError(t, err)

	// flipping the signature invalidates the token
	tampered := raw[:len(raw)-2] + "xx"
	_, err = auther.SessionFromToken(tampered)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryAuth, richErr.Category)

	// a token signed with a different key fails verification
	other := runboard.NewAuthenticator(repo.Users(), testConfig{
		signingKey:      "a-different-key",
		issuer:          "runboard-test",
		audience:        []string{"runboard"},
		tokenExpiration: 1,
	}).WithLogger(testLogger{})

	_, err = other.SessionFromToken(raw)
	require.Error(t, err)

	_, err = auther.SessionFromToken("not.a.jwt")
	require.Error(t, err)
}

func TestSessionFromTokenChecksIssuer(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)

	cfg := defaultTestConfig()
	cfg.issuer = "someone-else"
	minter := runboard.NewAuthenticator(repo.Users(), cfg).WithLogger(testLogger{})

	user := createTestUser(t, repo, runboard.RoleConfirmed)

	raw, err := minter.Login(ctx, user.Email, testPassword)
	require.NoError(t, err)
	require.Equal(t, 3, len(strings.Split(raw, ".")))

	verifier := runboard.NewAuthenticator(repo.Users(), defaultTestConfig()).WithLogger(testLogger{})
	_, err = verifier.SessionFromToken(raw)
	require.Error(t, err)
}
