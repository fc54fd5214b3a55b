package runboard

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NewLeaderboardEngine wires the lifecycle engine for leaderboards. Slugs are
// globally scoped and must not be purely numeric.
func NewLeaderboardEngine(db *bun.DB, opts ...EngineOption[*Leaderboard]) *Engine[*Leaderboard] {
	return NewEngine(db, LifecycleHandlers[*Leaderboard]{
		NewRecord: func() *Leaderboard { return &Leaderboard{} },
		GetID: func(l *Leaderboard) uuid.UUID {
			if l == nil {
				return uuid.Nil
			}
			return l.ID
		},
		SetID: func(l *Leaderboard, id uuid.UUID) {
			if l != nil {
				l.ID = id
			}
		},
		GetSlug:      func(l *Leaderboard) string { return l.Slug },
		GetDeletedAt: func(l *Leaderboard) *time.Time { return l.DeletedAt },
		SetDeletedAt: func(l *Leaderboard, at *time.Time) { l.DeletedAt = at },
		SetCreatedAt: func(l *Leaderboard, at *time.Time) { l.CreatedAt = at },
		SetUpdatedAt: func(l *Leaderboard, at *time.Time) { l.UpdatedAt = at },
		ValidateSlug: ValidateLeaderboardSlug,
		Resource:     "leaderboard",
	}, opts...)
}

// NewCategoryEngine wires the lifecycle engine for categories. Slugs are
// unique per owning leaderboard.
func NewCategoryEngine(db *bun.DB, opts ...EngineOption[*Category]) *Engine[*Category] {
	return NewEngine(db, LifecycleHandlers[*Category]{
		NewRecord: func() *Category { return &Category{} },
		GetID: func(c *Category) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Category, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetSlug:      func(c *Category) string { return c.Slug },
		GetDeletedAt: func(c *Category) *time.Time { return c.DeletedAt },
		SetDeletedAt: func(c *Category, at *time.Time) { c.DeletedAt = at },
		SetCreatedAt: func(c *Category, at *time.Time) { c.CreatedAt = at },
		SetUpdatedAt: func(c *Category, at *time.Time) { c.UpdatedAt = at },
		ValidateSlug: ValidateSlug,
		ScopeQuery: func(q *bun.SelectQuery, c *Category) *bun.SelectQuery {
			return q.Where("?TableAlias.leaderboard_id = ?", c.LeaderboardID)
		},
		Resource: "category",
	}, opts...)
}

// CategoriesOf scopes engine reads to one leaderboard's categories.
func CategoriesOf(leaderboardID uuid.UUID) SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.leaderboard_id = ?", leaderboardID)
	}
}
