package echoapi

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/trezcool/absensi/core"
)

const (
	tokenContextKey = "userToken"
	tokenAudience   = "Absensi"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	StudentID int  `json:"student_id,omitempty"` // -> STUDENT PORTAL
	IsAdmin   bool `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
}

// NewClaims returns the claims of a session for p, valid for conf.Server.JWTExpirationDelta from now.
func NewClaims(p core.Principal, conf *core.Config, now time.Time) *Claims {
	subject := p.Subject
	if subject == "" && p.IsStudent() {
		subject = strconv.Itoa(p.StudentID)
	}
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   subject,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		StudentID: p.StudentID,
		IsAdmin:   p.IsAdmin,
	}
}

func (c Claims) Principal() core.Principal {
	return core.Principal{Subject: c.Subject, StudentID: c.StudentID, IsAdmin: c.IsAdmin}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func jwtConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getPrincipal(ctx echo.Context) (core.Principal, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Principal{}, err
	}
	return claims.Principal(), nil
}

func adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		p, err := getPrincipal(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context principal")
		}
		if !p.IsAdmin {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

func studentMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		p, err := getPrincipal(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context principal")
		}
		if !p.IsStudent() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

// gate verifies the TOTP codes displayed at the school gate. A gate without secret accepts anything.
type gate struct {
	secret string
	clock  core.Clock
}

func (g gate) enabled() bool { return g.secret != "" }

func (g gate) verify(code string) error {
	if !g.enabled() {
		return nil
	}
	ok, err := totp.ValidateCustom(code, g.secret, g.clock.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return errInvalidGateCode
	}
	return nil
}
