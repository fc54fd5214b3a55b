package runboard

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type VerifyRecoveryMessage struct {
	Token      string `json:"token" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Recovery token"`
	OnResponse func(resp *VerifyRecoveryResponse)
}

func (m VerifyRecoveryMessage) Type() string { return "account.recovery_verify" }

// VerifyRecoveryResponse reports the state of a recovery token without
// changing it. A reset form uses this to decide whether to render at all.
type VerifyRecoveryResponse struct {
	Found    bool `json:"found" doc:"Token exists."`
	Used     bool `json:"used" doc:"Token has already been consumed."`
	Expired  bool `json:"expired" doc:"Token is past its expiry."`
	Eligible bool `json:"eligible" doc:"Token owner may still reset their password."`
}

// Usable reports whether the token would currently be accepted by a reset.
func (r *VerifyRecoveryResponse) Usable() bool {
	return r.Found && !r.Used && !r.Expired && r.Eligible
}

// VerifyRecoveryHandler is a read-only probe over a recovery token. It never
// consumes the token and never advances any state.
type VerifyRecoveryHandler struct {
	repo RepositoryManager
	now  func() time.Time
}

// NewVerifyRecoveryHandler creates a handler with sane defaults.
func NewVerifyRecoveryHandler(repo RepositoryManager) *VerifyRecoveryHandler {
	return &VerifyRecoveryHandler{
		repo: repo,
		now:  time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (h *VerifyRecoveryHandler) WithClock(clock func() time.Time) *VerifyRecoveryHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *VerifyRecoveryHandler) Execute(ctx context.Context, event VerifyRecoveryMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during recovery verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyRecoveryHandler) execute(ctx context.Context, event VerifyRecoveryMessage) error {
	token := &AccountRecovery{}
	resp := &VerifyRecoveryResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if !isUUID(event.Token) {
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err = h.repo.Recoveries().GetByID(ctx, event.Token)
		if err != nil {
			// a missing token is part of the expected flow, not an application error
			if goerrors.IsNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve recovery token")
		}

		resp.Found = true
		resp.Used = token.IsUsed()
		resp.Expired = token.IsExpired(h.now())

		user, err := h.repo.Users().GetByIdentifierTx(ctx, tx, token.UserID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve token owner")
		}

		resp.Eligible = CanRequestRecovery(user.Role)
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify recovery token")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
