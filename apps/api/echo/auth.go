package echoapi

import (
	"sort"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolbus/core"
)

const (
	claimsContextKey = "clientToken"
	tokenQueryParam  = "token"
	audience         = "SchoolBus Map"
)

// Claims represents the authorization claims transmitted via a JWT.
// tokens are issued to map clients (dispatch consoles, parent apps, feed bridges) by the admin CLI.
type Claims struct {
	jwt.StandardClaims
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	IsAdmin  bool     `json:"is_admin,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// NewClaims returns the Claims of client `subject`, expiring after the configured JWT delta.
func NewClaims(conf *core.Config, subject, username string, isAdmin bool, roles ...string) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   subject,
			Audience:  audience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: username,
		IsAdmin:  isAdmin,
		Roles:    roles,
	}
}

// Actor identifies the client in logs.
func (c Claims) Actor() core.Actor {
	return core.Actor{ID: c.Subject, Username: c.Username, Email: c.Email}
}

// jwtConfig is the JWT auth middleware config. Tokens are read from `lookup`, eg: "query:token".
func jwtConfig(conf *core.Config, lookup string) middleware.JWTConfig {
	cfg := middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    claimsContextKey,
		Claims:        new(Claims),
	}
	if lookup != "" {
		cfg.TokenLookup = lookup
	}
	return cfg
}

// GenerateToken generates a signed JWT token string representing the client Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(claimsContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if claims, err := getContextClaims(ctx); err == nil {
		sort.Strings(claims.Roles)
		for _, role := range roles {
			if i := sort.SearchStrings(claims.Roles, role); i < len(claims.Roles) && claims.Roles[i] == role {
				return true
			}
		}
	}
	return false
}

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
