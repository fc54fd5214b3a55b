package runboard

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConsumeConfirmationSQL flips used_at exactly once; the used_at IS NULL
// guard makes the loser of a concurrent redemption see zero rows.
var ConsumeConfirmationSQL = `UPDATE "account_confirmations" AS "acf"
SET
	"used_at" = ?
WHERE
	"acf"."id" = ?
AND "acf"."used_at" IS NULL
RETURNING *;`

// ConsumeRecoverySQL is the recovery-table counterpart of ConsumeConfirmationSQL.
var ConsumeRecoverySQL = `UPDATE "account_recoveries" AS "arc"
SET
	"used_at" = ?
WHERE
	"arc"."id" = ?
AND "arc"."used_at" IS NULL
RETURNING *;`

// SupersedeConfirmationsSQL marks every outstanding confirmation token of a
// user as used; issuing a new token supersedes the old ones.
var SupersedeConfirmationsSQL = `UPDATE "account_confirmations" AS "acf"
SET
	"used_at" = ?
WHERE
	"acf"."user_id" = ?
AND "acf"."used_at" IS NULL
RETURNING *;`

// SupersedeRecoveriesSQL is the recovery-table counterpart of SupersedeConfirmationsSQL.
var SupersedeRecoveriesSQL = `UPDATE "account_recoveries" AS "arc"
SET
	"used_at" = ?
WHERE
	"arc"."user_id" = ?
AND "arc"."used_at" IS NULL
RETURNING *;`

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Confirmations() repository.Repository[*AccountConfirmation]
	Recoveries() repository.Repository[*AccountRecovery]
}

func NewConfirmationsRepository(db *bun.DB) repository.Repository[*AccountConfirmation] {
	handlers := repository.ModelHandlers[*AccountConfirmation]{
		NewRecord: func() *AccountConfirmation {
			return &AccountConfirmation{}
		},
		GetID: func(record *AccountConfirmation) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *AccountConfirmation, id uuid.UUID) {
			record.ID = id
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewRecoveriesRepository(db *bun.DB) repository.Repository[*AccountRecovery] {
	handlers := repository.ModelHandlers[*AccountRecovery]{
		NewRecord: func() *AccountRecovery {
			return &AccountRecovery{}
		},
		GetID: func(record *AccountRecovery) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *AccountRecovery, id uuid.UUID) {
			record.ID = id
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db            *bun.DB
	users         Users
	confirmations repository.Repository[*AccountConfirmation]
	recoveries    repository.Repository[*AccountRecovery]
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:            db,
		users:         NewUsersRepository(db),
		confirmations: NewConfirmationsRepository(db),
		recoveries:    NewRecoveriesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.confirmations == nil {
		return errors.New("repository confirmations should be initialized")
	}

	if m.recoveries == nil {
		return errors.New("repository recoveries should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Confirmations() repository.Repository[*AccountConfirmation] {
	return m.confirmations
}

func (m mngr) Recoveries() repository.Repository[*AccountRecovery] {
	return m.recoveries
}
