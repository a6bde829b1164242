package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextAddsSessionFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", "json")
	t.Cleanup(func() { Init("info", "json") })

	ctx := WithContext(context.Background(), SessionIDKey, "sess-1")
	ctx = WithContext(ctx, UserIDKey, "user-9")
	Error(ctx, "dispatch failed", errors.New("boom"), "op", "generate")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "dispatch failed", line["msg"])
	assert.Equal(t, "sess-1", line["session_id"])
	assert.Equal(t, "user-9", line["user_id"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "generate", line["op"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}
