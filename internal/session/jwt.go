package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "idvault/pkg/domainerrors"
)

// Claims are the access-token JWT claims. The registered ID field carries the
// JTI that keys the server-side session record.
type Claims struct {
	WalletID string `json:"wallet_id"`
	jwt.RegisteredClaims
}

// TokenSigner mints and verifies HS256 access tokens.
type TokenSigner struct {
	signingKey []byte
	issuer     string
}

// NewTokenSigner constructs a signer for the given shared key.
func NewTokenSigner(signingKey, issuer string) *TokenSigner {
	return &TokenSigner{signingKey: []byte(signingKey), issuer: issuer}
}

// Sign mints an access token bound to a wallet and session JTI.
func (s *TokenSigner) Sign(walletID string, jti uuid.UUID, issuedAt, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		WalletID: walletID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	return token.SignedString(s.signingKey)
}

// Verify checks the signature and registered claims. Store-side revocation
// is the manager's job; this only proves the token is ours and unexpired.
func (s *TokenSigner) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
