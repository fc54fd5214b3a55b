package runboard

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializeRecoveryMessage struct {
	// Identifier accepts id, email, or username so the reset form can take
	// either without leaking which ones exist.
	Identifier string `json:"identifier" doc:"Account id, email, or username."`
	OnResponse func(resp *InitializeRecoveryResponse)
}

func (m InitializeRecoveryMessage) Type() string { return "account.recovery_request" }

type InitializeRecoveryResponse struct {
	Token     *AccountRecovery
	EmailSent bool
}

// InitializeRecoveryHandler issues a recovery token for a Confirmed or
// Administrator account. Same commit-then-notify contract as the
// confirmation issuer.
type InitializeRecoveryHandler struct {
	repo     RepositoryManager
	mailer   Mailer
	links    LinkBuilder
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewInitializeRecoveryHandler creates a handler with sane defaults.
func NewInitializeRecoveryHandler(repo RepositoryManager, mailer Mailer, links LinkBuilder) *InitializeRecoveryHandler {
	return &InitializeRecoveryHandler{
		repo:     repo,
		mailer:   mailer,
		links:    links,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (h *InitializeRecoveryHandler) WithClock(clock func() time.Time) *InitializeRecoveryHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

// WithActivitySink sets the sink used to emit issuance events.
func (h *InitializeRecoveryHandler) WithActivitySink(sink ActivitySink) *InitializeRecoveryHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializeRecoveryHandler) WithLogger(logger Logger) *InitializeRecoveryHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializeRecoveryHandler) Execute(ctx context.Context, event InitializeRecoveryMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during recovery initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializeRecoveryHandler) execute(ctx context.Context, event InitializeRecoveryMessage) error {
	user := &User{}
	resp := &InitializeRecoveryResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByIdentifierTx(ctx, tx, event.Identifier)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("user not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for recovery")
		}

		if !CanRequestRecovery(user.Role) {
			return ErrRoleNotEligible
		}

		now := h.now()

		if _, err := h.repo.Recoveries().RawTx(ctx, tx, SupersedeRecoveriesSQL, now, user.ID.String()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to supersede outstanding recoveries")
		}

		token := NewAccountRecovery(user.ID, now)
		created, err := h.repo.Recoveries().CreateTx(ctx, tx, token)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create recovery token")
		}

		resp.Token = created
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize account recovery")
	}

	h.recordIssued(ctx, resp.Token.ID.String(), user.ID.String())

	link := h.links.RecoveryLink(resp.Token.ID.String())
	sendErr := h.mailer.Send(ctx, Message{
		To:      user.Email,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Follow this link to reset your password: %s", link),
	})
	if sendErr != nil {
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

func (h *InitializeRecoveryHandler) recordIssued(ctx context.Context, tokenID, userID string) {
	err := h.activity.Record(ctx, ActivityEvent{
		EventType: ActivityEventTokenIssued,
		UserID:    userID,
		Metadata: map[string]any{
			"kind":     "recovery",
			"token_id": tokenID,
		},
		OccurredAt: h.now(),
	})
	if err != nil {
		h.logger.Warn("activity sink error during recovery issuance: %v", err)
	}
}
