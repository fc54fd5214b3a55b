package runboard

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializeConfirmationMessage struct {
	UserID     string `json:"user_id" doc:"Account to confirm."`
	OnResponse func(resp *InitializeConfirmationResponse)
}

func (m InitializeConfirmationMessage) Type() string { return "account.confirmation_request" }

type InitializeConfirmationResponse struct {
	Token     *AccountConfirmation
	EmailSent bool
}

// InitializeConfirmationHandler issues a confirmation token for a Registered
// account and notifies its owner. The token is committed before the email is
// attempted: a delivery failure surfaces as EMAIL_DELIVERY_FAILED but the
// token stays redeemable.
type InitializeConfirmationHandler struct {
	repo     RepositoryManager
	mailer   Mailer
	links    LinkBuilder
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewInitializeConfirmationHandler creates a handler with sane defaults.
func NewInitializeConfirmationHandler(repo RepositoryManager, mailer Mailer, links LinkBuilder) *InitializeConfirmationHandler {
	return &InitializeConfirmationHandler{
		repo:     repo,
		mailer:   mailer,
		links:    links,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (h *InitializeConfirmationHandler) WithClock(clock func() time.Time) *InitializeConfirmationHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

// WithActivitySink sets the sink used to emit issuance events.
func (h *InitializeConfirmationHandler) WithActivitySink(sink ActivitySink) *InitializeConfirmationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializeConfirmationHandler) WithLogger(logger Logger) *InitializeConfirmationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializeConfirmationHandler) Execute(ctx context.Context, event InitializeConfirmationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during confirmation initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializeConfirmationHandler) execute(ctx context.Context, event InitializeConfirmationMessage) error {
	user := &User{}
	resp := &InitializeConfirmationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByIdentifierTx(ctx, tx, event.UserID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("user not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for confirmation")
		}

		if !CanRequestConfirmation(user.Role) {
			return ErrRoleNotEligible
		}

		now := h.now()

		// a fresh token supersedes any outstanding unused ones
		if _, err := h.repo.Confirmations().RawTx(ctx, tx, SupersedeConfirmationsSQL, now, user.ID.String()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to supersede outstanding confirmations")
		}

		token := NewAccountConfirmation(user.ID, now)
		created, err := h.repo.Confirmations().CreateTx(ctx, tx, token)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create confirmation token")
		}

		resp.Token = created
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize account confirmation")
	}

	h.recordIssued(ctx, resp.Token.ID.String(), user.ID.String())

	link := h.links.ConfirmationLink(resp.Token.ID.String())
	sendErr := h.mailer.Send(ctx, Message{
		To:      user.Email,
		Subject: "Confirm your account",
		Body:    fmt.Sprintf("Follow this link to confirm your account: %s", link),
	})
	if sendErr != nil {
		// token already committed; caller learns delivery failed but the
		// token stays valid
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return EmailFailedError(sendErr)
	}

	resp.EmailSent = true

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *InitializeConfirmationHandler) recordIssued(ctx context.Context, tokenID, userID string) {
	err := h.activity.Record(ctx, ActivityEvent{
		EventType: ActivityEventTokenIssued,
		UserID:    userID,
		Metadata: map[string]any{
			"kind":     "confirmation",
			"token_id": tokenID,
		},
		OccurredAt: h.now(),
	})
	if err != nil {
		h.logger.Warn("activity sink error during confirmation issuance: %v", err)
	}
}
