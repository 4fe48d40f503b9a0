// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/audiolti/internal/model"
	"github.com/hitoshi/audiolti/internal/role"
)

// sessionQueryParam はiframe内のリンクで使われるセッショントークンのクエリパラメータ名。
const sessionQueryParam = "ltik"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	identityContextKey   = contextKey("identity")
	permissionContextKey = contextKey("permission")
)

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
// *lti.SessionVerifierが満たす。
type TokenVerifier interface {
	Verify(token string) (*model.IdentityToken, error)
}

// NewIdentityMiddleware はセッショントークンを検証し、起動トークンと権限区分を
// リクエストコンテキストに注入するミドルウェアを返す。
// トークンはAuthorizationヘッダー（Bearer）または ltik クエリパラメータから読み取る。
// 権限区分はここで1回だけ計算する。
func NewIdentityMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				slog.Warn("invalid session token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext はリクエストコンテキストから起動トークンと権限区分を取得する。
// Identityミドルウェアを通過したリクエストでのみokがtrueになる。
func IdentityFromContext(ctx context.Context) (*model.IdentityToken, role.Permission, bool) {
	identity, ok := ctx.Value(identityContextKey).(*model.IdentityToken)
	if !ok || identity == nil {
		return nil, role.Permission{}, false
	}
	perm, _ := ctx.Value(permissionContextKey).(role.Permission)
	return identity, perm, true
}

// ContextWithIdentity はコンテキストに起動トークンと権限区分を注入する。
// テストやミドルウェア以外のコンテキスト生成でも使用する。
func ContextWithIdentity(ctx context.Context, identity *model.IdentityToken) context.Context {
	perm := role.Classify(identity.Roles())
	ctx = context.WithValue(ctx, identityContextKey, identity)
	ctx = context.WithValue(ctx, permissionContextKey, perm)
	setLoggedUser(ctx, identity.Subject)
	return ctx
}

// userKeyFromContext はレート制限のキーとなるユーザーIDを返す。
func userKeyFromContext(ctx context.Context) (string, bool) {
	identity, _, ok := IdentityFromContext(ctx)
	if !ok || identity.Subject == "" {
		return "", false
	}
	return identity.Subject, true
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, found := strings.Cut(auth, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get(sessionQueryParam)
}
