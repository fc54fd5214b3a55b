package runboard

import (
	"context"
	"database/sql"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StatusFilter selects rows by lifecycle state.
type StatusFilter string

const (
	// StatusPublished matches only live rows (deleted_at IS NULL)
	StatusPublished StatusFilter = "published"
	// StatusDeleted matches only soft-deleted rows
	StatusDeleted StatusFilter = "deleted"
	// StatusAny matches both
	StatusAny StatusFilter = "any"
)

const (
	// DefaultPageSize is used when a list request does not set a limit
	DefaultPageSize = 20
	// MaxPageSize caps the limit a caller can request
	MaxPageSize = 100
)

// ListCriteria narrows List and Search results.
type ListCriteria struct {
	Status StatusFilter
	Offset int
	Limit  int
}

// SelectCriteria lets callers scope engine reads, e.g. to one leaderboard's
// categories.
type SelectCriteria func(*bun.SelectQuery) *bun.SelectQuery

// LifecycleHandlers adapts a concrete model to Engine, the same way
// repository handlers adapt models to the generic repository.
type LifecycleHandlers[T any] struct {
	NewRecord    func() T
	GetID        func(T) uuid.UUID
	SetID        func(T, uuid.UUID)
	GetSlug      func(T) string
	GetDeletedAt func(T) *time.Time
	SetDeletedAt func(T, *time.Time)
	SetCreatedAt func(T, *time.Time)
	SetUpdatedAt func(T, *time.Time)
	// ValidateSlug may tighten the shared slug rules per entity.
	ValidateSlug func(string) error
	// ScopeQuery constrains a select to the record's slug uniqueness scope.
	// Nil means the slug is globally scoped.
	ScopeQuery func(q *bun.SelectQuery, record T) *bun.SelectQuery
	// Resource names the entity in activity events.
	Resource string
}

// Engine drives the soft-delete lifecycle for one slug-scoped entity type.
// It never pre-validates slug availability; the store's partial unique index
// is the source of truth and violations are translated into SlugConflictError
// after the fact.
type Engine[T any] struct {
	db       *bun.DB
	handlers LifecycleHandlers[T]
	now      func() time.Time
	activity ActivitySink
	logger   Logger
}

// EngineOption customizes engine construction.
type EngineOption[T any] func(*Engine[T])

// WithEngineClock injects a custom clock (useful for tests).
func WithEngineClock[T any](clock func() time.Time) EngineOption[T] {
	return func(e *Engine[T]) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithEngineActivitySink sets the sink used to emit lifecycle events.
func WithEngineActivitySink[T any](sink ActivitySink) EngineOption[T] {
	return func(e *Engine[T]) {
		e.activity = normalizeActivitySink(sink)
	}
}

// WithEngineLogger overrides the logger used by the engine.
func WithEngineLogger[T any](logger Logger) EngineOption[T] {
	return func(e *Engine[T]) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a lifecycle engine for the given model adapter.
func NewEngine[T any](db *bun.DB, handlers LifecycleHandlers[T], opts ...EngineOption[T]) *Engine[T] {
	e := &Engine[T]{
		db:       db,
		handlers: handlers,
		now:      time.Now,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	return e
}

// Create persists a new record. A partial-unique rejection is reported as
// SlugConflictError carrying the live holder of the slug.
func (e *Engine[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T

	slug := e.handlers.GetSlug(record)
	if err := e.validateSlug(slug); err != nil {
		return zero, err
	}

	if e.handlers.GetID(record) == uuid.Nil {
		e.handlers.SetID(record, uuid.New())
	}
	now := e.now()
	e.handlers.SetCreatedAt(record, &now)

	err := e.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(record).Exec(ctx)
		return err
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return zero, NewSlugConflict(slug, e.liveSlugHolder(ctx, record))
		}
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create record")
	}

	e.recordActivity(ctx, ActivityEventResourceCreated, record, now)
	return record, nil
}

// UpdateOption customizes a partial update.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	undelete bool
}

// WithUndelete asks Update to clear deleted_at, guarded exactly like Restore.
func WithUndelete() UpdateOption {
	return func(o *updateOptions) {
		o.undelete = true
	}
}

// Update loads the record (deleted rows included), applies the mutator, and
// commits. Unset fields stay untouched because the mutator only writes what
// the caller provided.
func (e *Engine[T]) Update(ctx context.Context, id uuid.UUID, apply func(T) error, opts ...UpdateOption) (T, error) {
	var zero T

	options := &updateOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	record, err := e.getByID(ctx, id)
	if err != nil {
		return zero, err
	}

	if options.undelete {
		if e.handlers.GetDeletedAt(record) == nil {
			return zero, ErrNotDeleted
		}
		e.handlers.SetDeletedAt(record, nil)
	}

	if apply != nil {
		if err := apply(record); err != nil {
			return zero, err
		}
	}

	slug := e.handlers.GetSlug(record)
	if err := e.validateSlug(slug); err != nil {
		return zero, err
	}

	now := e.now()
	e.handlers.SetUpdatedAt(record, &now)

	err = e.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model(record).
			WherePK().
			WhereAllWithDeleted().
			Exec(ctx)
		return err
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return zero, NewSlugConflict(slug, e.liveSlugHolder(ctx, record))
		}
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update record")
	}

	e.recordActivity(ctx, ActivityEventResourceUpdated, record, now)
	return record, nil
}

// Delete soft-deletes the record. Deleting an already deleted row reports
// ErrAlreadyDeleted and never touches deleted_at again.
func (e *Engine[T]) Delete(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T

	record, err := e.getByID(ctx, id)
	if err != nil {
		return zero, err
	}

	if e.handlers.GetDeletedAt(record) != nil {
		return zero, ErrAlreadyDeleted
	}

	now := e.now()
	e.handlers.SetDeletedAt(record, &now)
	e.handlers.SetUpdatedAt(record, &now)

	err = e.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model(record).
			WherePK().
			WhereAllWithDeleted().
			Exec(ctx)
		return err
	})

	if err != nil {
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete record")
	}

	e.recordActivity(ctx, ActivityEventResourceDeleted, record, now)
	return record, nil
}

// Restore clears deleted_at. Deletion freed the slug, so another live row may
// have claimed it since; the commit then fails against the partial unique
// index and the row stays deleted while the caller receives the conflict.
func (e *Engine[T]) Restore(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T

	record, err := e.getByID(ctx, id)
	if err != nil {
		return zero, err
	}

	if e.handlers.GetDeletedAt(record) == nil {
		return zero, ErrNotDeleted
	}

	e.handlers.SetDeletedAt(record, nil)
	now := e.now()
	e.handlers.SetUpdatedAt(record, &now)

	err = e.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model(record).
			WherePK().
			WhereAllWithDeleted().
			Exec(ctx)
		return err
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return zero, NewSlugConflict(e.handlers.GetSlug(record), e.liveSlugHolder(ctx, record))
		}
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to restore record")
	}

	e.recordActivity(ctx, ActivityEventResourceRestored, record, now)
	return record, nil
}

// List returns a page of records filtered by lifecycle state, newest first.
func (e *Engine[T]) List(ctx context.Context, criteria ListCriteria, scope ...SelectCriteria) ([]T, int, error) {
	var records []T

	q := e.db.NewSelect().Model(&records)
	q = applyStatusFilter(q, criteria.Status)
	for _, s := range scope {
		if s != nil {
			q = s(q)
		}
	}

	offset, limit := normalizePage(criteria.Offset, criteria.Limit)
	total, err := q.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		ScanAndCount(ctx)

	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list records")
	}

	return records, total, nil
}

// Search filters by a free-text query over name and slug and orders results
// by match quality: exact name, name prefix, name substring, slug substring.
func (e *Engine[T]) Search(ctx context.Context, query string, criteria ListCriteria, scope ...SelectCriteria) ([]T, int, error) {
	var records []T

	lowered := strings.ToLower(strings.TrimSpace(query))
	contains := "%" + lowered + "%"
	prefix := lowered + "%"

	q := e.db.NewSelect().Model(&records)
	q = applyStatusFilter(q, criteria.Status)
	for _, s := range scope {
		if s != nil {
			q = s(q)
		}
	}

	q = q.Where("(lower(?TableAlias.name) LIKE ? OR lower(?TableAlias.slug) LIKE ?)", contains, contains)

	offset, limit := normalizePage(criteria.Offset, criteria.Limit)
	total, err := q.
		OrderExpr(`CASE
			WHEN lower(?TableAlias.name) = ? THEN 0
			WHEN lower(?TableAlias.name) LIKE ? THEN 1
			WHEN lower(?TableAlias.name) LIKE ? THEN 2
			ELSE 3
		END`, lowered, prefix, contains).
		Order("name ASC").
		Offset(offset).
		Limit(limit).
		ScanAndCount(ctx)

	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to search records")
	}

	return records, total, nil
}

// GetByID fetches one record, deleted rows included.
func (e *Engine[T]) GetByID(ctx context.Context, id uuid.UUID) (T, error) {
	return e.getByID(ctx, id)
}

func (e *Engine[T]) getByID(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T

	record := e.handlers.NewRecord()
	err := e.db.NewSelect().
		Model(record).
		WhereAllWithDeleted().
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return zero, goerrors.New("record not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{"id": id.String(), "resource": e.handlers.Resource})
		}
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load record")
	}

	return record, nil
}

// liveSlugHolder re-reads the non-deleted row owning the record's slug within
// its scope. Returns nil when no live holder remains.
func (e *Engine[T]) liveSlugHolder(ctx context.Context, record T) any {
	holder := e.handlers.NewRecord()

	q := e.db.NewSelect().
		Model(holder).
		Where("?TableAlias.slug = ?", e.handlers.GetSlug(record))
	if e.handlers.ScopeQuery != nil {
		q = e.handlers.ScopeQuery(q, record)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if !goerrors.Is(err, sql.ErrNoRows) {
			e.logger.Error("failed to load conflicting record", "error", err)
		}
		return nil
	}

	return holder
}

func (e *Engine[T]) validateSlug(slug string) error {
	if e.handlers.ValidateSlug != nil {
		return e.handlers.ValidateSlug(slug)
	}
	return ValidateSlug(slug)
}

func (e *Engine[T]) recordActivity(ctx context.Context, event ActivityEventType, record T, at time.Time) {
	err := e.activity.Record(ctx, ActivityEvent{
		EventType:  event,
		ResourceID: e.handlers.GetID(record).String(),
		Metadata: map[string]any{
			"resource": e.handlers.Resource,
			"slug":     e.handlers.GetSlug(record),
		},
		OccurredAt: at,
	})
	if err != nil {
		e.logger.Warn("activity sink error: %v", err)
	}
}

func applyStatusFilter(q *bun.SelectQuery, status StatusFilter) *bun.SelectQuery {
	switch status {
	case StatusDeleted:
		return q.WhereDeleted()
	case StatusAny:
		return q.WhereAllWithDeleted()
	default:
		// soft_delete models exclude deleted rows by default
		return q
	}
}

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return offset, limit
}
