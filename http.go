package runboard

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// APIError is the JSON body returned for every failed request.
type APIError struct {
	Title       string `json:"title"`
	Detail      string `json:"detail,omitempty"`
	TextCode    string `json:"text_code,omitempty"`
	Conflicting any    `json:"conflicting,omitempty"`
}

// RenderConflict writes the 409 payload carrying the live holder of the
// contested slug.
func RenderConflict(ctx router.Context, conflict *SlugConflictError) error {
	return ctx.JSON(router.StatusConflict, APIError{
		Title:       "Conflict",
		Detail:      conflict.Error(),
		TextCode:    TextCodeSlugConflict,
		Conflicting: conflict.Existing,
	})
}

// RenderLifecycleError maps lifecycle engine failures onto the API contract:
// slug conflicts are 409 with the conflicting record, AlreadyDeleted and
// NotDeleted surface as 404 with a telling title, validation failures as 422.
func RenderLifecycleError(ctx router.Context, err error) error {
	if conflict, ok := AsSlugConflict(err); ok {
		return RenderConflict(ctx, conflict)
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.TextCode {
		case TextCodeAlreadyDeleted:
			return ctx.JSON(router.StatusNotFound, APIError{
				Title:    "Already Deleted",
				Detail:   richErr.Message,
				TextCode: richErr.TextCode,
			})
		case TextCodeNotDeleted:
			return ctx.JSON(router.StatusNotFound, APIError{
				Title:    "Not Deleted",
				Detail:   richErr.Message,
				TextCode: richErr.TextCode,
			})
		}

		switch richErr.Category {
		case goerrors.CategoryNotFound:
			return ctx.JSON(router.StatusNotFound, APIError{
				Title:  "Not Found",
				Detail: richErr.Message,
			})
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			return ctx.JSON(router.StatusUnprocessableEntity, APIError{
				Title:  "Validation Failed",
				Detail: richErr.Message,
			})
		}
	}

	return renderInternal(ctx, err)
}

// RenderTokenError maps verification-token failures. Unknown, used, and
// expired tokens all collapse to the same 404 so probing ids learns nothing;
// only the role gate is surfaced distinctly, with a caller-chosen status.
func RenderTokenError(ctx router.Context, err error, roleGateStatus int) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.TextCode {
		case TextCodeTokenExpired, TextCodeTokenUsed:
			return renderTokenNotFound(ctx)
		case TextCodeRoleNotEligible:
			return ctx.JSON(roleGateStatus, APIError{
				Title:    "Not Eligible",
				Detail:   richErr.Message,
				TextCode: richErr.TextCode,
			})
		case TextCodeSamePassword:
			return ctx.JSON(router.StatusConflict, APIError{
				Title:    "Password Unchanged",
				Detail:   richErr.Message,
				TextCode: richErr.TextCode,
			})
		case TextCodeEmailFailed:
			return ctx.JSON(router.StatusInternalServerError, APIError{
				Title:    "Email Delivery Failed",
				Detail:   richErr.Message,
				TextCode: richErr.TextCode,
			})
		}

		switch richErr.Category {
		case goerrors.CategoryNotFound:
			return renderTokenNotFound(ctx)
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			return ctx.JSON(router.StatusUnprocessableEntity, APIError{
				Title:  "Validation Failed",
				Detail: richErr.Message,
			})
		case goerrors.CategoryConflict:
			return ctx.JSON(router.StatusConflict, APIError{
				Title:    "Conflict",
				Detail:   richErr.Message,
				TextCode: richErr.TextCode,
			})
		case goerrors.CategoryAuth:
			status := router.StatusUnauthorized
			if richErr.Code == goerrors.CodeForbidden {
				status = router.StatusForbidden
			}
			return ctx.JSON(status, APIError{
				Title:  "Unauthorized",
				Detail: richErr.Message,
			})
		}
	}

	return renderInternal(ctx, err)
}

func renderTokenNotFound(ctx router.Context) error {
	return ctx.JSON(router.StatusNotFound, APIError{
		Title: "Not Found",
	})
}

func renderInternal(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusInternalServerError, APIError{
		Title:  "Internal Server Error",
		Detail: err.Error(),
	})
}
