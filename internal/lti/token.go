package lti

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// LTIサービスのスコープ。
const (
	ScopeLineItem         = "https://purl.imsglobal.org/spec/lti-ags/scope/lineitem"
	ScopeLineItemReadonly = "https://purl.imsglobal.org/spec/lti-ags/scope/lineitem.readonly"
	ScopeScore            = "https://purl.imsglobal.org/spec/lti-ags/scope/score"
	ScopeMembership       = "https://purl.imsglobal.org/spec/lti-nrps/scope/contextmembership.readonly"
)

// ServiceScopes はこのツールが要求する全スコープ。
var ServiceScopes = []string{ScopeLineItem, ScopeLineItemReadonly, ScopeScore, ScopeMembership}

const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// assertionLifetime はクライアントアサーションの有効期間。
const assertionLifetime = 5 * time.Minute

// PlatformCredentials はLMSのトークンエンドポイントに対するツールの認証情報。
type PlatformCredentials struct {
	ClientID   string
	TokenURL   string
	KeyID      string
	PrivateKey *rsa.PrivateKey
}

// LoadPrivateKey はPEM形式のRSA秘密鍵をファイルから読み込む。
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// ClientAssertion はトークン要求に添付するRS256署名のJWTを生成する。
func (c PlatformCredentials) ClientAssertion(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    c.ClientID,
		Subject:   c.ClientID,
		Audience:  jwt.ClaimStrings{c.TokenURL},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if c.KeyID != "" {
		token.Header["kid"] = c.KeyID
	}

	signed, err := token.SignedString(c.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign client assertion: %w", err)
	}
	return signed, nil
}

// assertionTokenSource はトークン取得ごとに新しいクライアントアサーションを生成する。
type assertionTokenSource struct {
	ctx    context.Context
	creds  PlatformCredentials
	scopes []string
	now    func() time.Time
}

// Token はclient_credentialsグラントでアクセストークンを取得する。
func (s *assertionTokenSource) Token() (*oauth2.Token, error) {
	assertion, err := s.creds.ClientAssertion(s.now())
	if err != nil {
		return nil, err
	}

	cfg := clientcredentials.Config{
		ClientID: s.creds.ClientID,
		TokenURL: s.creds.TokenURL,
		Scopes:   s.scopes,
		EndpointParams: url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return cfg.Token(s.ctx)
}

// NewTokenSource はアクセストークンを有効期限まで再利用するTokenSourceを返す。
// トークン要求にはbaseのHTTPクライアントを使用する。
func NewTokenSource(base *http.Client, creds PlatformCredentials, scopes []string) oauth2.TokenSource {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	return oauth2.ReuseTokenSource(nil, &assertionTokenSource{
		ctx:    ctx,
		creds:  creds,
		scopes: scopes,
		now:    time.Now,
	})
}

// NewServiceHTTPClient はリクエストにBearerトークンを付与するHTTPクライアントを返す。
// タイムアウトとトランスポートはbaseから引き継ぐ。
func NewServiceHTTPClient(base *http.Client, ts oauth2.TokenSource) *http.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = base.Timeout
	return client
}
