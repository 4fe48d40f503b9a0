package lti

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/audiolti/internal/model"
)

// ErrInvalidSessionToken はセッショントークンが無効であることを表す。
var ErrInvalidSessionToken = errors.New("invalid session token")

// SessionClaims は起動完了後にツールが発行するセッショントークン（ltik）のクレーム。
// 検証済みの起動情報をそのまま保持する。
type SessionClaims struct {
	jwt.RegisteredClaims
	model.IdentityToken
}

// SessionVerifier はHS256で署名されたセッショントークンを検証する。
type SessionVerifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewSessionVerifier はSessionVerifierを生成する。
func NewSessionVerifier(key []byte) *SessionVerifier {
	return &SessionVerifier{
		key:    key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify はトークンを検証し、起動情報を返す。
// 署名不正、期限切れ、exp欠落、subject欠落の場合はErrInvalidSessionTokenを返す。
func (v *SessionVerifier) Verify(tokenString string) (*model.IdentityToken, error) {
	claims := &SessionClaims{}

	token, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidSessionToken
	}
	if claims.IdentityToken.Subject == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidSessionToken)
	}

	identity := claims.IdentityToken
	return &identity, nil
}
