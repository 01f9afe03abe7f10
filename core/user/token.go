package user

import (
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/trezcool/shule/core"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsStudent    bool     `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsTeacher    bool     `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin      bool     `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
	Roles        []string `json:"roles,omitempty"`
}

// Identity is the verified outcome of a credential check: who the caller is
// and what roles they carry. It is all downstream components may consume;
// authorization policy stays out of this subsystem.
type Identity struct {
	UserID string
	Name   string
	Roles  []string
}

// TokenAuthority issues and verifies the signed credentials used by both
// the REST API and the live channel handshake.
type TokenAuthority struct {
	appName         string
	secretKey       []byte
	expirationDelta time.Duration
}

func NewTokenAuthority(conf *core.Config) *TokenAuthority {
	return &TokenAuthority{
		appName:         conf.AppName,
		secretKey:       conf.SecretKey,
		expirationDelta: conf.Server.JWTExpirationDelta,
	}
}

func (ta *TokenAuthority) SecretKey() []byte { return ta.secretKey }

// GetUserClaims builds the claims for a verified user.
func (ta *TokenAuthority) GetUserClaims(usr User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    ta.appName,
			Subject:   usr.ID,
			Audience:  "Shule",
			ExpiresAt: now.Add(ta.expirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsTeacher:    usr.IsTeacher(),
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (ta *TokenAuthority) GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(ta.secretKey)
	if err != nil {
		return "", core.NewAuthenticationError("signing token")
	}
	return ss, nil
}

// Verify validates a raw credential and yields the verified identity.
// A bad, missing or expired credential fails with an authentication error
// before any state is touched.
func (ta *TokenAuthority) Verify(credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, core.NewAuthenticationError("missing credential")
	}

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, core.NewAuthenticationError("unexpected signing method")
		}
		return ta.secretKey, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, core.NewAuthenticationError("invalid or expired credential")
	}
	return Identity{
		UserID: claims.Subject,
		Name:   claims.Username,
		Roles:  claims.Roles,
	}, nil
}
