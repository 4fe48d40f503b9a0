package model

import "encoding/json"

// IdentityToken は検証済みの起動トークンを表す。
// 起動ハンドシェイク（署名検証、nonce管理）は外部で完了している前提で、
// ワークフロー層は読み取り専用で扱う。
type IdentityToken struct {
	Subject         string           `json:"user"`
	UserInfo        UserInfo         `json:"userInfo"`
	PlatformContext *PlatformContext `json:"platformContext,omitempty"`
}

// UserInfo はLMSから渡されるユーザープロフィール。
type UserInfo struct {
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
}

// PlatformContext は起動時のコース、リソース、ロール情報を表す。
// デコード元のJSONを保持し、提出時にはそれをそのままスナップショットとして保存する。
type PlatformContext struct {
	Roles         []string           `json:"roles,omitempty"`
	Resource      ResourceLink       `json:"resource"`
	Context       CourseContext      `json:"context"`
	Endpoint      *GradeEndpoint     `json:"endpoint,omitempty"`
	NamesRoles    *NamesRolesService `json:"namesRoles,omitempty"`
	TargetLinkURI string             `json:"targetLinkUri,omitempty"`

	raw json.RawMessage
}

// ResourceLink はLMS上のリソースリンクを表す。
type ResourceLink struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// CourseContext はコース情報を表す。
type CourseContext struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Label string `json:"label,omitempty"`
}

// GradeEndpoint は成績サービス（AGS）のエンドポイント情報を表す。
// LineItemは起動コンテキストに埋め込まれた特定の列、LineItemsは列コレクションのURL。
type GradeEndpoint struct {
	Scope     []string `json:"scope,omitempty"`
	LineItems string   `json:"lineitems,omitempty"`
	LineItem  string   `json:"lineitem,omitempty"`
}

// NamesRolesService は名簿サービス（NRPS）のエンドポイント情報を表す。
type NamesRolesService struct {
	ContextMembershipsURL string `json:"context_memberships_url,omitempty"`
}

// platformContextAlias はUnmarshalJSONの再帰を避けるための別名型。
type platformContextAlias PlatformContext

// UnmarshalJSON はデコード元のJSONを保持しつつフィールドを読み込む。
func (p *PlatformContext) UnmarshalJSON(b []byte) error {
	var a platformContextAlias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*p = PlatformContext(a)
	p.raw = append(json.RawMessage(nil), b...)
	return nil
}

// Snapshot は保存用のJSONを返す。デコード元があればそれを優先する。
func (p *PlatformContext) Snapshot() (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage("null"), nil
	}
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	return json.Marshal(platformContextAlias(*p))
}

// ResourceLinkID はリソースリンクIDを返す。コンテキストが無い場合は空文字列。
func (t *IdentityToken) ResourceLinkID() string {
	if t == nil || t.PlatformContext == nil {
		return ""
	}
	return t.PlatformContext.Resource.ID
}

// Roles はプラットフォームコンテキストのロール一覧を返す。
func (t *IdentityToken) Roles() []string {
	if t == nil || t.PlatformContext == nil {
		return nil
	}
	return t.PlatformContext.Roles
}
