package runboard

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// Claims carries the session payload minted at login.
type Claims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid"`
	UserRole string `json:"role"`
}

// Authenticator verifies credentials and mints HS256 session tokens. Banned
// accounts are rejected before the password is even compared.
type Authenticator struct {
	users           Users
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
}

// NewAuthenticator returns a new Authenticator configured from opts.
func NewAuthenticator(users Users, opts Config) *Authenticator {
	return &Authenticator{
		users:           users,
		signingKey:      []byte(opts.GetSigningKey()),
		tokenExpiration: opts.GetTokenExpiration(),
		issuer:          opts.GetIssuer(),
		audience:        opts.GetAudience(),
		logger:          defLogger{},
	}
}

// WithLogger overrides the logger used by the authenticator.
func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Login verifies the identifier/password pair and returns a signed session
// token. A missing account and a wrong password are indistinguishable to the
// caller.
func (a *Authenticator) Login(ctx context.Context, identifier, password string) (string, error) {
	user, err := a.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return "", ErrMismatchedHashAndPassword
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during login")
	}

	if user.Role == RoleBanned {
		a.logger.Warn("login blocked for banned account: %s", user.ID)
		return "", ErrUserBanned
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return "", ErrMismatchedHashAndPassword
	}

	return a.generateJWT(user)
}

// SessionFromToken parses and validates a session token string.
func (a *Authenticator) SessionFromToken(raw string) (*Claims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if a.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(a.issuer))
	}
	if len(a.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(a.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			a.logger.Error("unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, goerrors.New("session token has expired", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "malformed session token").
			WithCode(goerrors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		a.logger.Error("could not decode or validate session claims")
		return nil, goerrors.New("unable to decode session", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return claims, nil
}

func (a *Authenticator) generateJWT(user *User) (string, error) {
	now := time.Now()

	var aud jwt.ClaimStrings
	if len(a.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(a.audience))
		copy(aud, a.audience)
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   user.ID.String(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(a.tokenExpiration) * time.Hour)),
		},
		UID:      user.ID.String(),
		UserRole: string(user.Role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}
