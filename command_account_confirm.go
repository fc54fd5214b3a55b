package runboard

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ConfirmAccountMessage struct {
	Token      string `json:"token" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Confirmation token"`
	OnResponse func(resp *ConfirmAccountResponse)
}

func (m ConfirmAccountMessage) Type() string { return "account.confirm" }

type ConfirmAccountResponse struct {
	User *User
}

// ConfirmAccountHandler redeems a confirmation token, moving the owning
// account from Registered to Confirmed. Consumption and transition commit
// together: if either side loses a concurrent race the whole redemption rolls
// back, so an ineligible role never burns the token.
type ConfirmAccountHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewConfirmAccountHandler creates a handler with sane defaults.
func NewConfirmAccountHandler(repo RepositoryManager) *ConfirmAccountHandler {
	return &ConfirmAccountHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (h *ConfirmAccountHandler) WithClock(clock func() time.Time) *ConfirmAccountHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

// WithActivitySink sets the sink used to emit confirmation events.
func (h *ConfirmAccountHandler) WithActivitySink(sink ActivitySink) *ConfirmAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmAccountHandler) WithLogger(logger Logger) *ConfirmAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmAccountHandler) Execute(ctx context.Context, event ConfirmAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmAccountHandler) execute(ctx context.Context, event ConfirmAccountMessage) error {
	token := &AccountConfirmation{}
	resp := &ConfirmAccountResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if !isUUID(event.Token) {
		return ErrTokenNotFound
	}

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err = h.repo.Confirmations().GetByID(ctx, event.Token)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrTokenNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve confirmation token")
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

		// the role gate leaves the token untouched: a Confirmed or Banned
		// owner keeps the token unredeemed
		if user.Role != RoleRegistered {
			return ErrRoleNotEligible
		}

		consumed, err := h.repo.Confirmations().RawTx(ctx, tx, ConsumeConfirmationSQL, now, token.ID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume confirmation token")
		}

		if len(consumed) == 0 {
			// lost the race against a concurrent redemption
			return ErrTokenUsed
		}

		transitioned, err := h.repo.Users().RawTx(ctx, tx, TransitionUserRoleSQL, RoleConfirmed, now, token.UserID.String(), RoleRegistered)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to transition user role")
		}

		if len(transitioned) == 0 {
			// role moved underneath us; rolling back keeps the token live
			return ErrRoleNotEligible
		}

		resp.User = transitioned[0]
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm account")
	}

	h.recordActivity(ctx, token)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *ConfirmAccountHandler) recordActivity(ctx context.Context, token *AccountConfirmation) {
	if token == nil {
		return
	}

	err := h.activity.Record(ctx, ActivityEvent{
		EventType: ActivityEventAccountConfirmed,
		UserID:    token.UserID.String(),
		Metadata: map[string]any{
			"token_id": token.ID.String(),
		},
		OccurredAt: h.now(),
	})
	if err != nil {
		h.logger.Warn("activity sink error during account confirmation: %v", err)
	}
}
