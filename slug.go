package runboard

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

var (
	slugPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	numericPattern = regexp.MustCompile(`^[0-9]+$`)
)

// ValidateSlug enforces the shared slug shape: 2-80 chars, alphanumeric plus
// hyphen and underscore.
func ValidateSlug(slug string) error {
	err := validation.Validate(slug,
		validation.Required,
		validation.Length(2, 80),
		validation.Match(slugPattern).Error("must contain only letters, digits, hyphens and underscores"),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid slug").
			WithMetadata(map[string]any{"slug": slug})
	}
	return nil
}

// ValidateLeaderboardSlug additionally rejects purely numeric slugs, which
// would be ambiguous with numeric ids in leaderboard URLs.
func ValidateLeaderboardSlug(slug string) error {
	if err := ValidateSlug(slug); err != nil {
		return err
	}
	if numericPattern.MatchString(slug) {
		return goerrors.New("leaderboard slug must not be purely numeric", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"slug": slug})
	}
	return nil
}
