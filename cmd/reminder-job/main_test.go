package main

import (
	"bytes"
	"errors"
	"go/parser"
	"go/token"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags_Defaults(t *testing.T) {
	opts, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Nil(t, opts.referenceTime)
	assert.Nil(t, opts.testMode, "unset flag must not override config")
	assert.False(t, opts.serve)
}

func TestParseFlags_ReferenceTimeAndTestMode(t *testing.T) {
	opts, err := parseFlags([]string{"--reference-time=2026-02-03T09:15:00-05:00", "--test-mode"}, io.Discard)
	require.NoError(t, err)
	require.NotNil(t, opts.referenceTime)
	assert.Equal(t, time.Date(2026, 2, 3, 14, 15, 0, 0, time.UTC), *opts.referenceTime)
	require.NotNil(t, opts.testMode)
	assert.True(t, *opts.testMode)
}

func TestParseFlags_ExplicitTestModeFalse(t *testing.T) {
	opts, err := parseFlags([]string{"--test-mode=false"}, io.Discard)
	require.NoError(t, err)
	require.NotNil(t, opts.testMode)
	assert.False(t, *opts.testMode)
}

func TestParseFlags_Errors(t *testing.T) {
	_, err := parseFlags([]string{"--reference-time=yesterday"}, io.Discard)
	assert.ErrorContains(t, err, "RFC3339")

	_, err = parseFlags([]string{"--serve", "--reference-time=2026-02-03T14:00:00Z"}, io.Discard)
	assert.Error(t, err)

	_, err = parseFlags([]string{"--nope"}, io.Discard)
	assert.Error(t, err)
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Info("wake", "now", "x")
	l.Error(errors.New("boom"), "panic", "job", 1)

	out := buf.String()
	assert.True(t, strings.Contains(out, "cron: wake"))
	assert.True(t, strings.Contains(out, "error=boom"))
}

func TestMainEmbedsZoneDatabase(t *testing.T) {
	f, err := parser.ParseFile(token.NewFileSet(), "main.go", nil, parser.ImportsOnly)
	require.NoError(t, err)

	var found bool
	for _, imp := range f.Imports {
		if imp.Path.Value == `"time/tzdata"` {
			found = true
		}
	}
	assert.True(t, found, "user timezones must resolve without system zoneinfo")
}
