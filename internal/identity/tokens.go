package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errUnexpectedSigningMethod = errors.New("unexpected signing method")

// tokenClaims are the claims carried by a session token. Subject is the
// owner id and ID is the session id used for revocation.
type tokenClaims struct {
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func (t tokenIssuer) issue(ownerID string, now time.Time) (token string, claims tokenClaims, err error) {
	claims = tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", tokenClaims{}, fmt.Errorf("sign token: %w", err)
	}
	return token, claims, nil
}

func (t tokenIssuer) parse(token string, now time.Time) (tokenClaims, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigningMethod
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }), jwt.WithExpirationRequired())
	if err != nil {
		return tokenClaims{}, err
	}
	if !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return tokenClaims{}, errors.New("invalid token")
	}
	return claims, nil
}
