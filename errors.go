package runboard

import (
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes for the expected business outcomes. The HTTP layer keys its
// status mapping off these, never off error strings.
const (
	TextCodeSlugConflict    = "SLUG_CONFLICT"
	TextCodeAlreadyDeleted  = "ALREADY_DELETED"
	TextCodeNotDeleted      = "NOT_DELETED"
	TextCodeTokenExpired    = "TOKEN_EXPIRED"
	TextCodeTokenUsed       = "TOKEN_ALREADY_USED"
	TextCodeRoleNotEligible = "ROLE_NOT_ELIGIBLE"
	TextCodeSamePassword    = "PASSWORD_UNCHANGED"
	TextCodeEmailFailed     = "EMAIL_DELIVERY_FAILED"
)

// ErrAlreadyDeleted is returned when deleting a row whose deleted_at is set.
var ErrAlreadyDeleted = goerrors.New("record is already deleted", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyDeleted).
	WithCode(goerrors.CodeConflict)

// ErrNotDeleted is returned when restoring a row that was never deleted.
var ErrNotDeleted = goerrors.New("record is not deleted", goerrors.CategoryConflict).
	WithTextCode(TextCodeNotDeleted).
	WithCode(goerrors.CodeConflict)

// ErrTokenNotFound is returned when no verification token matches the id.
var ErrTokenNotFound = goerrors.New("verification token not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrTokenExpired is returned when a verification token is past expires_at.
var ErrTokenExpired = goerrors.New("verification token has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenUsed is returned when a verification token was already consumed.
var ErrTokenUsed = goerrors.New("verification token has already been used", goerrors.CategoryConflict).
	WithTextCode(TextCodeTokenUsed).
	WithCode(goerrors.CodeConflict)

// ErrRoleNotEligible is returned when the owning account's current role does
// not satisfy the token's gate. The token is left untouched.
var ErrRoleNotEligible = goerrors.New("account role is not eligible", goerrors.CategoryConflict).
	WithTextCode(TextCodeRoleNotEligible).
	WithCode(goerrors.CodeConflict)

// ErrSamePassword is returned when a password reset supplies the password
// already in use.
var ErrSamePassword = goerrors.New("new password matches the current password", goerrors.CategoryConflict).
	WithTextCode(TextCodeSamePassword).
	WithCode(goerrors.CodeConflict)

// ErrMismatchedHashAndPassword is the generic credential failure.
var ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserBanned rejects any gated operation for banned accounts.
var ErrUserBanned = goerrors.New("account is banned", goerrors.CategoryAuth).
	WithCode(goerrors.CodeForbidden)

// ErrNoEmptyString rejects empty required input.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryBadInput)

// SlugConflictError reports that the store's partial unique index rejected a
// write. Existing holds the live row currently owning the contested slug,
// re-fetched after the failed commit; it may be nil if the winner vanished
// between the rejection and the re-read.
type SlugConflictError struct {
	Slug     string
	Existing any
}

func (e *SlugConflictError) Error() string {
	return fmt.Sprintf("slug %q is already taken by a live record", e.Slug)
}

// NewSlugConflict builds the conflict reported to callers of Create, Update,
// and Restore.
func NewSlugConflict(slug string, existing any) *SlugConflictError {
	return &SlugConflictError{Slug: slug, Existing: existing}
}

// AsSlugConflict will check for a slug conflict anywhere in the chain
func AsSlugConflict(err error) (*SlugConflictError, bool) {
	var conflict *SlugConflictError
	if goerrors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

// IsUniqueViolation will check for unique constraint rejections across the
// drivers we target. Matching on message text keeps the core free of a hard
// dependency on either driver package.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE=23505") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// EmailFailedError wraps a notification failure that happened after the token
// was committed. The token stays redeemable.
func EmailFailedError(err error) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver notification email").
		WithTextCode(TextCodeEmailFailed)
}
