package runboard

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ResetPasswordMessage struct {
	Token      string `json:"token" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Recovery token"`
	Password   string `json:"password" example:"some_secret_word" doc:"New password"`
	OnResponse func(resp *ResetPasswordResponse)
}

func (m ResetPasswordMessage) Type() string { return "account.password_reset" }

type ResetPasswordResponse struct {
	User *User
}

// ResetPasswordHandler redeems a recovery token and replaces the owner's
// password hash in the same transaction. The new password must differ from
// the current one; a reused password rejects without burning the token.
type ResetPasswordHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewResetPasswordHandler creates a handler with sane defaults.
func NewResetPasswordHandler(repo RepositoryManager) *ResetPasswordHandler {
	return &ResetPasswordHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (h *ResetPasswordHandler) WithClock(clock func() time.Time) *ResetPasswordHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *ResetPasswordHandler) WithActivitySink(sink ActivitySink) *ResetPasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ResetPasswordHandler) WithLogger(logger Logger) *ResetPasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ResetPasswordHandler) Execute(ctx context.Context, event ResetPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResetPasswordHandler) execute(ctx context.Context, event ResetPasswordMessage) error {
	token := &AccountRecovery{}
	resp := &ResetPasswordResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := ValidatePassword(event.Password); err != nil {
		return err
	}

	if !isUUID(event.Token) {
		return ErrTokenNotFound
	}

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err = h.repo.Recoveries().GetByID(ctx, event.Token)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrTokenNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve recovery token")
		}

		if token.IsUsed() {
			return ErrTokenUsed
		}

		now := h.now()

		if token.IsExpired(now) {
			return ErrTokenExpired
		}

		user, err := h.repo.Users().GetByIdentifierTx(ctx, tx, token.UserID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve token owner")
		}

		if !CanRequestRecovery(user.Role) {
			return ErrRoleNotEligible
		}

		// reusing the current password is rejected without burning the token
		if ComparePasswordAndHash(event.Password, user.PasswordHash) == nil {
			return ErrSamePassword
		}

		passwordHash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		consumed, err := h.repo.Recoveries().RawTx(ctx, tx, ConsumeRecoverySQL, now, token.ID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume recovery token")
		}

		if len(consumed) == 0 {
			// lost the race against a concurrent reset
			return ErrTokenUsed
		}

		updated, err := h.repo.Users().RawTx(ctx, tx, ReplaceUserPasswordSQL, passwordHash, now, user.ID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}

		if len(updated) > 0 {
			resp.User = updated[0]
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset password")
	}

	h.recordActivity(ctx, token)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *ResetPasswordHandler) recordActivity(ctx context.Context, token *AccountRecovery) {
	if token == nil {
		return
	}

	err := h.activity.Record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		UserID:    token.UserID.String(),
		Metadata: map[string]any{
			"token_id": token.ID.String(),
		},
		OccurredAt: h.now(),
	})
	if err != nil {
		h.logger.Warn("activity sink error during password reset: %v", err)
	}
}
