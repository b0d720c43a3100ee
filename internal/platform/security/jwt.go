package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	purposeAccess = "access"
	purposeEmail  = "email_verify"
)

var ErrTokenInvalid = errors.New("token_invalid")

type JWTManager struct {
	secret    []byte
	accessTTL time.Duration
	emailTTL  time.Duration
	now       func() time.Time
}

func NewJWTManager(secret string, accessTTL, emailTTL time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), accessTTL: accessTTL, emailTTL: emailTTL, now: time.Now}
}

func (j *JWTManager) Secret() []byte { return j.secret }

func (j *JWTManager) AccessTTL() time.Duration { return j.accessTTL }

func (j *JWTManager) IssueAccess(userID, sessionID string) (string, time.Time, error) {
	now := j.now()
	exp := now.Add(j.accessTTL)
	claims := jwt.MapClaims{
		"sub":  userID,
		"sid":  sessionID,
		"type": purposeAccess,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	return token, exp, err
}

// EmailClaims identify a magic-link token. JTI makes each link single use and
// AttemptID ties it to the code mailed alongside it.
type EmailClaims struct {
	Email     string
	JTI       string
	AttemptID string
	ExpiresAt time.Time
}

func (j *JWTManager) IssueEmailToken(email, attemptID string) (string, EmailClaims, error) {
	now := j.now()
	c := EmailClaims{Email: email, JTI: uuid.NewString(), AttemptID: attemptID, ExpiresAt: now.Add(j.emailTTL)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email":   email,
		"jti":     c.JTI,
		"attempt": attemptID,
		"type":    purposeEmail,
		"exp":     c.ExpiresAt.Unix(),
		"iat":     now.Unix(),
	}).SignedString(j.secret)
	return token, c, err
}

func (j *JWTManager) ParseEmailToken(token string) (EmailClaims, error) {
	claims, err := j.parse(token, purposeEmail)
	if err != nil {
		return EmailClaims{}, err
	}
	email, _ := claims["email"].(string)
	jti, _ := claims["jti"].(string)
	attempt, _ := claims["attempt"].(string)
	if email == "" || jti == "" || attempt == "" {
		return EmailClaims{}, ErrTokenInvalid
	}
	exp, _ := claims.GetExpirationTime()
	out := EmailClaims{Email: email, JTI: jti, AttemptID: attempt}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// ParseAccess returns the user and session ids of a valid access token.
func (j *JWTManager) ParseAccess(token string) (userID, sessionID string, err error) {
	claims, err := j.parse(token, purposeAccess)
	if err != nil {
		return "", "", err
	}
	userID, _ = claims["sub"].(string)
	sessionID, _ = claims["sid"].(string)
	if userID == "" {
		return "", "", ErrTokenInvalid
	}
	return userID, sessionID, nil
}

func (j *JWTManager) parse(token, purpose string) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid || claims["type"] != purpose {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
