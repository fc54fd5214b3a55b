package runboard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	runboard "github.com/goliatone/go-runboard"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLinks = runboard.LinkBuilder{BaseURL: "http://test.local"}

func TestConfirmationFlow(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	mailer := &capturingMailer{}
	sink := &capturingSink{}

	user := createTestUser(t, repo, runboard.RoleRegistered)

	t0 := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	var issued *runboard.InitializeConfirmationResponse
	issue := runboard.NewInitializeConfirmationHandler(repo, mailer, testLinks).
		WithClock(clockAt(t0)).
		WithActivitySink(sink).
		WithLogger(testLogger{})

	err := issue.Execute(ctx, runboard.InitializeConfirmationMessage{
		UserID:     user.ID.String(),
		OnResponse: func(r *runboard.InitializeConfirmationResponse) { issued = r },
	})
	require.NoError(t, err)
	require.NotNil(t, issued)
	require.NotNil(t, issued.Token)
	assert.True(t, issued.EmailSent)
	assert.True(t, issued.Token.ExpiresAt.Equal(t0.Add(runboard.TokenTTL)))

	require.Len(t, mailer.messages, 1)
	assert.Equal(t, user.Email, mailer.messages[0].To)
	assert.Contains(t, mailer.messages[0].Body, issued.Token.ID.String())

	var confirmed *runboard.ConfirmAccountResponse
	confirm := runboard.NewConfirmAccountHandler(repo).
		WithClock(clockAt(t0.Add(5 * time.Minute))).
		WithActivitySink(sink).
		WithLogger(testLogger{})

	err = confirm.Execute(ctx, runboard.ConfirmAccountMessage{
		Token:      issued.Token.ID.String(),
		OnResponse: func(r *runboard.ConfirmAccountResponse) { confirmed = r },
	})
	require.NoError(t, err)
	require.NotNil(t, confirmed)
	require.NotNil(t, confirmed.User)
	assert.Equal(t, runboard.RoleConfirmed, confirmed.User.Role)

	// second redemption of the same token fails and leaves the role alone
	err = confirm.Execute(ctx, runboard.ConfirmAccountMessage{Token: issued.Token.ID.String()})
	require.ErrorIs(t, err, runboard.ErrTokenUsed)

	reloaded, err := repo.Users().GetByIdentifier(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, runboard.RoleConfirmed, reloaded.Role)

	require.Len(t, sink.events, 2)
	assert.Equal(t, runboard.ActivityEventTokenIssued, sink.events[0].EventType)
	assert.Equal(t, runboard.ActivityEventAccountConfirmed, sink.events[1].EventType)
}

func TestConfirmationExpiresAfterOneHour(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	mailer := &capturingMailer{}

	user := createTestUser(t, repo, runboard.RoleRegistered)

	t0 := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	var issued *runboard.InitializeConfirmationResponse
	issue := runboard.NewInitializeConfirmationHandler(repo, mailer, testLinks).
		WithClock(clockAt(t0))

	err := issue.Execute(ctx, runboard.InitializeConfirmationMessage{
		UserID:     user.ID.String(),
		OnResponse: func(r *runboard.InitializeConfirmationResponse) { issued = r },
	})
	require.NoError(t, err)

	confirm := runboard.NewConfirmAccountHandler(repo).
		WithClock(clockAt(t0.Add(3601 * time.Second)))

	err = confirm.Execute(ctx, runboard.ConfirmAccountMessage{Token: issued.Token.ID.String()})
	require.ErrorIs(t, err, runboard.ErrTokenExpired)

	reloaded, err := repo.Users().GetByIdentifier(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, runboard.RoleRegistered, reloaded.Role)
}

func TestConfirmationRoleGates(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	mailer := &capturingMailer{}

	issue := runboard.NewInitializeConfirmationHandler(repo, mailer, testLinks)

	// a confirmed account cannot request another confirmation
	confirmedUser := createTestUser(t, repo, runboard.RoleConfirmed)
	err := issue.Execute(ctx, runboard.InitializeConfirmationMessage{UserID: confirmedUser.ID.String()})
	require.ErrorIs(t, err, runboard.ErrRoleNotEligible)
	assert.Empty(t, mailer.messages)

	// a token issued while Registered dies unredeemed if the role changes
	user := createTestUser(t, repo, runboard.RoleRegistered)

	var issued *runboard.InitializeConfirmationResponse
	err = issue.Execute(ctx, runboard.InitializeConfirmationMessage{
		UserID:     user.ID.String(),
		OnResponse: func(r *runboard.InitializeConfirmationResponse) { issued = r },
	})
	require.NoError(t, err)

	_, err = db.NewUpdate().
		Model((*runboard.User)(nil)).
		Set("user_role = ?", runboard.RoleBanned).
		Where("id = ?", user.ID).
		Exec(ctx)
	require.NoError(t, err)

	confirm := runboard.NewConfirmAccountHandler(repo)
	err = confirm.Execute(ctx, runboard.ConfirmAccountMessage{Token: issued.Token.ID.String()})
	require.ErrorIs(t, err, runboard.ErrRoleNotEligible)

	// the gate must not burn the token
	token, err := repo.Confirmations().GetByID(ctx, issued.Token.ID.String())
	require.NoError(t, err)
	assert.False(t, token.IsUsed())
}

func TestConfirmationUnknownToken(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)

	confirm := runboard.NewConfirmAccountHandler(repo)

	err := confirm.Execute(ctx, runboard.ConfirmAccountMessage{Token: uuid.NewString()})
	require.ErrorIs(t, err, runboard.ErrTokenNotFound)

	err = confirm.Execute(ctx, runboard.ConfirmAccountMessage{Token: "not-a-uuid"})
	require.ErrorIs(t, err, runboard.ErrTokenNotFound)
}

func TestIssuingSupersedesOutstandingTokens(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	mailer := &capturingMailer{}

	user := createTestUser(t, repo, runboard.RoleRegistered)

	t0 := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	var first, second *runboard.InitializeConfirmationResponse

	issue := runboard.NewInitializeConfirmationHandler(repo, mailer, testLinks).WithClock(clockAt(t0))
	err := issue.Execute(ctx, runboard.InitializeConfirmationMessage{
		UserID:     user.ID.String(),
		OnResponse: func(r *runboard.InitializeConfirmationResponse) { first = r },
	})
	require.NoError(t, err)

	issue = runboard.NewInitializeConfirmationHandler(repo, mailer, testLinks).WithClock(clockAt(t0.Add(time.Minute)))
	err = issue.Execute(ctx, runboard.InitializeConfirmationMessage{
		UserID:     user.ID.String(),
		OnResponse: func(r *runboard.InitializeConfirmationResponse) { second = r },
	})
	require.NoError(t, err)

	// issuing again stamped the outstanding token as used
	stale, err := repo.Confirmations().GetByID(ctx, first.Token.ID.String())
	require.NoError(t, err)
	assert.True(t, stale.IsUsed())

	confirm := runboard.NewConfirmAccountHandler(repo).WithClock(clockAt(t0.Add(2 * time.Minute)))

	err = confirm.Execute(ctx, runboard.ConfirmAccountMessage{Token: first.Token.ID.String()})
	require.ErrorIs(t, err, runboard.ErrTokenUsed)

	err = confirm.Execute(ctx, runboard.ConfirmAccountMessage{Token: second.Token.ID.String()})
	require.NoError(t, err)
}

func TestEmailFailureLeavesTokenRedeemable(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	mailer := &capturingMailer{err: errors.New("smtp timeout")}

	user := createTestUser(t, repo, runboard.RoleRegistered)

	var issued *runboard.InitializeConfirmationResponse
	issue := runboard.NewInitializeConfirmationHandler(repo, mailer, testLinks).
		WithLogger(testLogger{})

	err := issue.Execute(ctx, runboard.InitializeConfirmationMessage{
		UserID:     user.ID.String(),
		OnResponse: func(r *runboard.InitializeConfirmationResponse) { issued = r },
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, runboard.TextCodeEmailFailed, richErr.TextCode)

	// the token committed before the send and stays valid
	require.NotNil(t, issued)
	require.NotNil(t, issued.Token)
	assert.False(t, issued.EmailSent)

	confirm := runboard.NewConfirmAccountHandler(repo)
	err = confirm.Execute(ctx, runboard.ConfirmAccountMessage{Token: issued.Token.ID.String()})
	require.NoError(t, err)
}

func TestRecoveryFlow(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	mailer := &capturingMailer{}

	user := createTestUser(t, repo, runboard.RoleConfirmed)

	t0 := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	var issued *runboard.InitializeRecoveryResponse
	issue := runboard.NewInitializeRecoveryHandler(repo, mailer, testLinks).WithClock(clockAt(t0))

	err := issue.Execute(ctx, runboard.InitializeRecoveryMessage{
		Identifier: user.Email,
		OnResponse: func(r *runboard.InitializeRecoveryResponse) { issued = r },
	})
	require.NoError(t, err)
	require.NotNil(t, issued.Token)
	require.Len(t, mailer.messages, 1)

	// probe reports the link as usable
	var probe *runboard.VerifyRecoveryResponse
	verify := runboard.NewVerifyRecoveryHandler(repo).WithClock(clockAt(t0.Add(time.Minute)))
	err = verify.Execute(ctx, runboard.VerifyRecoveryMessage{
		Token:      issued.Token.ID.String(),
		OnResponse: func(r *runboard.VerifyRecoveryResponse) { probe = r },
	})
	require.NoError(t, err)
	assert.True(t, probe.Usable())

	reset := runboard.NewResetPasswordHandler(repo).WithClock(clockAt(t0.Add(2 * time.Minute)))

	// a password format failure never touches the token
	err = reset.Execute(ctx, runboard.ResetPasswordMessage{
		Token:    issued.Token.ID.String(),
		Password: "short",
	})
	require.Error(t, err)

	// reusing the current password rejects without burning the token
	err = reset.Execute(ctx, runboard.ResetPasswordMessage{
		Token:    issued.Token.ID.String(),
		Password: testPassword,
	})
	require.ErrorIs(t, err, runboard.ErrSamePassword)

	token, err := repo.Recoveries().GetByID(ctx, issued.Token.ID.String())
	require.NoError(t, err)
	assert.False(t, token.IsUsed())

	// an actual change consumes the token and swaps the hash
	err = reset.Execute(ctx, runboard.ResetPasswordMessage{
		Token:    issued.Token.ID.String(),
		Password: "brand-new-password",
	})
	require.NoError(t, err)

	reloaded, err := repo.Users().GetByIdentifier(ctx, user.ID.String())
	require.NoError(t, err)
	require.NoError(t, runboard.ComparePasswordAndHash("brand-new-password", reloaded.PasswordHash))
	require.ErrorIs(t,
		runboard.ComparePasswordAndHash(testPassword, reloaded.PasswordHash),
		runboard.ErrMismatchedHashAndPassword,
	)

	// the consumed token cannot reset again
	err = reset.Execute(ctx, runboard.ResetPasswordMessage{
		Token:    issued.Token.ID.String(),
		Password: "yet-another-password",
	})
	require.ErrorIs(t, err, runboard.ErrTokenUsed)
}

func TestRecoveryRoleGates(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	mailer := &capturingMailer{}

	issue := runboard.NewInitializeRecoveryHandler(repo, mailer, testLinks)

	// unconfirmed accounts cannot start a recovery
	registered := createTestUser(t, repo, runboard.RoleRegistered)
	err := issue.Execute(ctx, runboard.InitializeRecoveryMessage{Identifier: registered.Email})
	require.ErrorIs(t, err, runboard.ErrRoleNotEligible)

	// administrators can
	admin := createTestUser(t, repo, runboard.RoleAdministrator)
	err = issue.Execute(ctx, runboard.InitializeRecoveryMessage{Identifier: admin.Email})
	require.NoError(t, err)
}

func TestRecoveryExpiry(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)
	mailer := &capturingMailer{}

	user := createTestUser(t, repo, runboard.RoleConfirmed)

	t0 := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	var issued *runboard.InitializeRecoveryResponse
	issue := runboard.NewInitializeRecoveryHandler(repo, mailer, testLinks).WithClock(clockAt(t0))
	err := issue.Execute(ctx, runboard.InitializeRecoveryMessage{
		Identifier: user.ID.String(),
		OnResponse: func(r *runboard.InitializeRecoveryResponse) { issued = r },
	})
	require.NoError(t, err)

	var probe *runboard.VerifyRecoveryResponse
	verify := runboard.NewVerifyRecoveryHandler(repo).WithClock(clockAt(t0.Add(3601 * time.Second)))
	err = verify.Execute(ctx, runboard.VerifyRecoveryMessage{
		Token:      issued.Token.ID.String(),
		OnResponse: func(r *runboard.VerifyRecoveryResponse) { probe = r },
	})
	require.NoError(t, err)
	assert.True(t, probe.Found)
	assert.True(t, probe.Expired)
	assert.False(t, probe.Usable())

	reset := runboard.NewResetPasswordHandler(repo).WithClock(clockAt(t0.Add(3601 * time.Second)))
	err = reset.Execute(ctx, runboard.ResetPasswordMessage{
		Token:    issued.Token.ID.String(),
		Password: "completely-new-password",
	})
	require.ErrorIs(t, err, runboard.ErrTokenExpired)
}

func TestVerifyRecoveryUnknownToken(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)

	verify := runboard.NewVerifyRecoveryHandler(repo)

	var probe *runboard.VerifyRecoveryResponse
	err := verify.Execute(ctx, runboard.VerifyRecoveryMessage{
		Token:      uuid.NewString(),
		OnResponse: func(r *runboard.VerifyRecoveryResponse) { probe = r },
	})
	require.NoError(t, err)
	assert.False(t, probe.Found)
	assert.False(t, probe.Usable())

	err = verify.Execute(ctx, runboard.VerifyRecoveryMessage{
		Token:      "garbage",
		OnResponse: func(r *runboard.VerifyRecoveryResponse) { probe = r },
	})
	require.NoError(t, err)
	assert.False(t, probe.Found)
}

func TestRegisterUserHandler(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	repo := runboard.NewRepositoryManager(db)

	handler := runboard.NewRegisterUserHandler(repo)

	var resp *runboard.RegisterUserResponse
	err := handler.Execute(ctx, runboard.RegisterUserMessage{
		Email:      "speedrunner@example.com",
		Password:   "a-strong-password",
		OnResponse: func(r *runboard.RegisterUserResponse) { resp = r },
	})
	require.NoError(t, err)
	require.NotNil(t, resp.User)
	// username derives from the email local part when omitted
	assert.Equal(t, "speedrunner", resp.User.Username)
	assert.Equal(t, runboard.RoleRegistered, resp.User.Role)
	assert.NotEqual(t, uuid.Nil, resp.User.ID)

	// duplicate email registers as a conflict, not an internal error
	err = handler.Execute(ctx, runboard.RegisterUserMessage{
		Email:    "speedrunner@example.com",
		Password: "another-password",
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryConflict, richErr.Category)

	// password format rejects before any row is written
	err = handler.Execute(ctx, runboard.RegisterUserMessage{
		Email:    "other@example.com",
		Password: "short",
	})
	require.Error(t, err)
}
