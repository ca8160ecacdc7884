package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/pushgate/config"
	"github.com/target/pushgate/internal/domain/model"
)

func TestRenderPushLogs(t *testing.T) {
	body := `{"errcode":0}`
	logs := []*model.PushLog{
		{
			RequestID:    "req-1",
			Status:       model.PushStatusSuccess,
			ResponseBody: &body,
			CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		nil,
	}

	var buf bytes.Buffer
	require.NoError(t, renderPushLogs(&buf, logs))

	out := buf.String()
	require.Contains(t, out, "CREATED")
	require.Contains(t, out, "2024-05-01T12:00:00Z")
	require.Contains(t, out, "req-1")
	require.Contains(t, out, body)
}

func TestRenderPushLogs_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderPushLogs(&buf, nil))
	require.Equal(t, "(no push logs)\n", buf.String())
}

func TestRenderCacheKeys(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderCacheKeys(&buf, []cacheKeyEntry{
		{Key: "pushgate:push:endpoint:ep-1", TTL: 30 * time.Second},
		{Key: "pushgate:push:endpoint:ep-2", TTL: -1},
	}))

	out := buf.String()
	require.Contains(t, out, "30s")
	require.Contains(t, out, "no expiry")
	require.Contains(t, out, "Total keys: 2")
}

func TestParsePushLogsFlags(t *testing.T) {
	opts, err := parsePushLogsFlags([]string{"--endpoint", "ep-1", "--limit", "5"})
	require.NoError(t, err)
	require.Equal(t, pushLogsOptions{EndpointID: "ep-1", Limit: 5}, opts)

	_, err = parsePushLogsFlags(nil)
	require.ErrorContains(t, err, "--endpoint is required")

	_, err = parsePushLogsFlags([]string{"--endpoint", "ep-1", "--limit", "0"})
	require.ErrorContains(t, err, "--limit")
}

func TestParsePruneLogsFlags_DefaultsFromReaperConfig(t *testing.T) {
	opts, err := parsePruneLogsFlags(nil, config.ReaperConfig{LogMaxAge: 48 * time.Hour, BatchSize: 500})
	require.NoError(t, err)
	require.Equal(t, 48*time.Hour, opts.MaxAge)
	require.Equal(t, 500, opts.BatchSize)

	_, err = parsePruneLogsFlags([]string{"--max-age", "0s"}, config.ReaperConfig{BatchSize: 1})
	require.ErrorContains(t, err, "--max-age")
}

func TestParseIDFlag(t *testing.T) {
	id, err := parseIDFlag("invalidate-endpoint", "id", "Endpoint id", []string{"--id", " ep-1 "})
	require.NoError(t, err)
	require.Equal(t, "ep-1", id)

	_, err = parseIDFlag("invalidate-endpoint", "id", "Endpoint id", nil)
	require.ErrorContains(t, err, "--id is required")
}

func TestIsLikelyRemoteHost(t *testing.T) {
	for host, want := range map[string]bool{
		"":               false,
		"localhost":      false,
		"127.0.0.1":      false,
		"db.local":       false,
		"10.0.0.5":       true,
		"db.example.com": true,
	} {
		require.Equal(t, want, isLikelyRemoteHost(host), host)
	}
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, confirm(strings.NewReader("yes\n"), &out, "About to reset."))
	require.Contains(t, out.String(), "Continue? [y/N]")

	require.Error(t, confirm(strings.NewReader("n\n"), &out, "About to reset."))
	require.Error(t, confirm(strings.NewReader(""), &out, "About to reset."))
}

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	for name := range commands() {
		require.Contains(t, buf.String(), name)
	}
}
