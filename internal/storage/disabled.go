package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrStorageDisabled は保存先のバケットが設定されていないことを表す。
var ErrStorageDisabled = errors.New("storage: object storage is not configured")

// Disabled はS3_BUCKET未設定時に使うObjectStore。全ての操作が失敗する。
type Disabled struct{}

func (Disabled) Put(context.Context, string, string, io.Reader, int64) (string, error) {
	return "", ErrStorageDisabled
}

func (Disabled) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", ErrStorageDisabled
}

var _ ObjectStore = Disabled{}
