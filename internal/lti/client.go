// Package lti はLMSのLTIサービス（成績: AGS、名簿: NRPS）との通信と、
// ツール自身が発行したセッショントークンの検証を提供する。
package lti

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/audiolti/internal/model"
)

// AGS/NRPSのメディアタイプ。
const (
	mediaTypeLineItem          = "application/vnd.ims.lis.v2.lineitem+json"
	mediaTypeLineItemContainer = "application/vnd.ims.lis.v2.lineitemcontainer+json"
	mediaTypeScore             = "application/vnd.ims.lis.v1.score+json"
	mediaTypeMembership        = "application/vnd.ims.lti-nrps.v2.membershipcontainer+json"
)

// maxResponseSize はレスポンスボディの最大読み取りサイズ。
const maxResponseSize = 1 << 20

// ErrNoGradeService は起動コンテキストに成績サービスのエンドポイントが無いことを表す。
var ErrNoGradeService = errors.New("platform context has no grade service endpoint")

// ErrNoRosterService は起動コンテキストに名簿サービスのエンドポイントが無いことを表す。
var ErrNoRosterService = errors.New("platform context has no names and roles service endpoint")

// LineItem は成績表の列を表す。
type LineItem struct {
	ID             string  `json:"id,omitempty"`
	ScoreMaximum   float64 `json:"scoreMaximum"`
	Label          string  `json:"label"`
	Tag            string  `json:"tag,omitempty"`
	ResourceLinkID string  `json:"resourceLinkId,omitempty"`
	ResourceID     string  `json:"resourceId,omitempty"`
}

// Score は列に送信するスコアレコード。ScoreGivenがnilの場合は省略される。
type Score struct {
	UserID           string   `json:"userId"`
	ScoreGiven       *float64 `json:"scoreGiven,omitempty"`
	ScoreMaximum     float64  `json:"scoreMaximum"`
	ActivityProgress string   `json:"activityProgress"`
	GradingProgress  string   `json:"gradingProgress"`
	Timestamp        string   `json:"timestamp"`
}

// Client はLMSのLTIサービスのクライアント。
// httpClientにはアクセストークンを付与するトランスポートを持つクライアントを渡す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// GetLineItems はリソースリンクに紐づく列の一覧を取得する。
func (c *Client) GetLineItems(ctx context.Context, identity *model.IdentityToken, resourceLinkID string) ([]LineItem, error) {
	endpoint, err := lineItemsEndpoint(identity)
	if err != nil {
		return nil, err
	}

	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("line items URLのパースに失敗しました: %w", err)
	}
	q := reqURL.Query()
	if resourceLinkID != "" {
		q.Set("resource_link_id", resourceLinkID)
	}
	reqURL.RawQuery = q.Encode()

	var items []LineItem
	if err := c.do(ctx, http.MethodGet, reqURL.String(), mediaTypeLineItemContainer, "", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateLineItem は列を新規作成し、LMSが採番したIDを含む列を返す。
func (c *Client) CreateLineItem(ctx context.Context, identity *model.IdentityToken, item LineItem) (*LineItem, error) {
	endpoint, err := lineItemsEndpoint(identity)
	if err != nil {
		return nil, err
	}

	var created LineItem
	if err := c.do(ctx, http.MethodPost, endpoint, mediaTypeLineItem, mediaTypeLineItem, item, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("created line item has no id")
	}
	return &created, nil
}

// SubmitScore は列にスコアを送信する。lineItemIDは列のURL。
func (c *Client) SubmitScore(ctx context.Context, identity *model.IdentityToken, lineItemID string, score Score) (*model.GradeReceipt, error) {
	scoresURL, err := scoresEndpoint(lineItemID)
	if err != nil {
		return nil, err
	}

	ts := c.now().UTC()
	if score.Timestamp == "" {
		score.Timestamp = ts.Format("2006-01-02T15:04:05.000Z07:00")
	}

	if err := c.do(ctx, http.MethodPost, scoresURL, "", mediaTypeScore, score, nil); err != nil {
		return nil, err
	}

	return &model.GradeReceipt{
		LineItemID:       lineItemID,
		UserID:           score.UserID,
		ScoreGiven:       score.ScoreGiven,
		ScoreMaximum:     score.ScoreMaximum,
		ActivityProgress: score.ActivityProgress,
		GradingProgress:  score.GradingProgress,
		Timestamp:        ts,
	}, nil
}

// GetMembers はコースの名簿をLMSから取得し、加工せずにそのまま返す。
func (c *Client) GetMembers(ctx context.Context, identity *model.IdentityToken) (json.RawMessage, error) {
	if identity == nil || identity.PlatformContext == nil || identity.PlatformContext.NamesRoles == nil ||
		identity.PlatformContext.NamesRoles.ContextMembershipsURL == "" {
		return nil, ErrNoRosterService
	}

	var members json.RawMessage
	if err := c.do(ctx, http.MethodGet, identity.PlatformContext.NamesRoles.ContextMembershipsURL, mediaTypeMembership, "", nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// do はJSONリクエストを送信し、2xx以外のステータスをエラーとして返す。
// outがnilの場合はレスポンスボディを読み捨てる。
func (c *Client) do(ctx context.Context, method, rawURL, accept, contentType string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("LTIサービスの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("url", redactQuery(rawURL)),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("LTIサービスがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("url", redactQuery(rawURL)),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("LTI service returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Error("LTIサービスのレスポンスのパースに失敗しました",
			slog.String("url", redactQuery(rawURL)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("malformed LTI service response: %w", err)
	}
	return nil
}

func lineItemsEndpoint(identity *model.IdentityToken) (string, error) {
	if identity == nil || identity.PlatformContext == nil || identity.PlatformContext.Endpoint == nil ||
		identity.PlatformContext.Endpoint.LineItems == "" {
		return "", ErrNoGradeService
	}
	return identity.PlatformContext.Endpoint.LineItems, nil
}

// scoresEndpoint は列URLのパスに /scores を付与する。クエリ文字列は維持する。
func scoresEndpoint(lineItemID string) (string, error) {
	u, err := url.Parse(lineItemID)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid line item id: %q", lineItemID)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/scores"
	return u.String(), nil
}

func redactQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
