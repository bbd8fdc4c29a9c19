package jwt

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type AccountToken struct {
	AccountID int64 `json:"accountID"`
	Remember  bool  `json:"rem"`
	jwt.RegisteredClaims
}

// VoiceGrant is a short-lived capability scoped to one voice room. The media
// server validates it independently of the session token.
type VoiceGrant struct {
	AccountID    int64  `json:"accountID"`
	Room         string `json:"room"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
	jwt.RegisteredClaims
}

const voiceGrantLifetime = 5 * time.Minute

type Signer struct {
	secret  []byte
	isHttps bool
}

func NewSigner(secret string, isHttps bool) *Signer {
	return &Signer{secret: []byte(secret), isHttps: isHttps}
}

// CreateToken mints a session token and returns both the cookie form (REST)
// and the raw string (websocket handshake bearer).
func (s *Signer) CreateToken(rememberMe bool, accountID int64) (http.Cookie, string, error) {
	var tokenLifeTime time.Duration
	if rememberMe {
		tokenLifeTime = time.Hour * 24 * 7 * 4 // 4 weeks
	} else {
		tokenLifeTime = time.Hour * 24 // 1 day
	}

	currentTime := time.Now().UTC()
	expirationDate := currentTime.Add(tokenLifeTime)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, AccountToken{
		AccountID: accountID,
		Remember:  rememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(expirationDate),
		},
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return http.Cookie{}, "", err
	}

	cookie := http.Cookie{
		Name:     "JWT",
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isHttps,
		SameSite: http.SameSiteLaxMode,
	}

	if rememberMe {
		cookie.Expires = expirationDate
	}

	return cookie, tokenString, nil
}

func (s *Signer) VerifyToken(tokenString string) (AccountToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccountToken{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return AccountToken{}, err
	}

	claims, ok := token.Claims.(*AccountToken)
	if !ok {
		return AccountToken{}, errors.New("invalid token")
	}

	if time.Now().UTC().After(claims.ExpiresAt.UTC()) {
		return AccountToken{}, errors.New("token expired")
	}

	return *claims, nil
}

func (s *Signer) CreateVoiceGrant(accountID int64, room string) (string, error) {
	currentTime := time.Now().UTC()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, VoiceGrant{
		AccountID:    accountID,
		Room:         room,
		CanPublish:   true,
		CanSubscribe: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(voiceGrantLifetime)),
		},
	})

	return token.SignedString(s.secret)
}

func (s *Signer) VerifyVoiceGrant(tokenString string) (VoiceGrant, error) {
	token, err := jwt.ParseWithClaims(tokenString, &VoiceGrant{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return VoiceGrant{}, err
	}

	claims, ok := token.Claims.(*VoiceGrant)
	if !ok {
		return VoiceGrant{}, errors.New("invalid voice grant")
	}

	return *claims, nil
}
