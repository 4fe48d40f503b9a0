// Package storage は録音ファイルのオブジェクトストレージを提供する。
// S3互換ストレージ（AWS S3、MinIO等）に対応する。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultPresignExpiry は再生用の署名付きURLの有効期間。
const DefaultPresignExpiry = 15 * time.Minute

// ErrBucketRequired はバケット名が未設定であることを表す。
var ErrBucketRequired = errors.New("storage: bucket is required")

// Config はS3接続設定。
// Endpointを指定した場合はパス形式のアドレッシングを使用する（MinIO向け）。
// 認証情報が空の場合はAWSの既定の認証チェーンを使用する。
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// ObjectStore は録音ファイルの保存先のインターフェース。
type ObjectStore interface {
	// Put はオブジェクトを保存し、永続的に参照できるURLを返す。
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	// PresignGet は一時的な取得用URLを返す。
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

// s3API はS3Storeが利用するS3クライアントの操作。
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// presignAPI はS3Storeが利用する署名付きURLの操作。
type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store はS3互換ストレージへの保存を行うObjectStoreの実装。
type S3Store struct {
	client  s3API
	presign presignAPI
	cfg     Config
}

// loadDefaultAWSConfig はテストで差し替え可能なAWS設定の読み込み関数。
var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// NewS3Store は設定からS3クライアントを生成する。
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
	}, nil
}

// Put はオブジェクトを保存し、ObjectURLを返す。
func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return s.ObjectURL(key), nil
}

// PresignGet は一時的な取得用URLを返す。expiresが0以下の場合はDefaultPresignExpiryを使用する。
func (s *S3Store) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = DefaultPresignExpiry
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}
	return req.URL, nil
}

// ObjectURL はオブジェクトの永続URLを返す。
// PublicBaseURL、カスタムエンドポイント（パス形式）、AWSの仮想ホスト形式の順に決定する。
func (s *S3Store) ObjectURL(key string) string {
	escaped := escapeKey(key)

	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + escaped
	case s.cfg.Endpoint != "":
		return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + url.PathEscape(s.cfg.Bucket) + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, escaped)
	}
}

// escapeKey はキーの区切り文字を維持したまま各セグメントをエスケープする。
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// compile-time interface check
var _ ObjectStore = (*S3Store)(nil)
