package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabled_AlwaysFails(t *testing.T) {
	var store ObjectStore = Disabled{}

	url, err := store.Put(context.Background(), "recordings/u/a.webm", "audio/webm", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrStorageDisabled)
	assert.Empty(t, url)

	url, err = store.PresignGet(context.Background(), "recordings/u/a.webm", 0)
	assert.ErrorIs(t, err, ErrStorageDisabled)
	assert.Empty(t, url)
}
