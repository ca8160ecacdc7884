package statsd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/target/pushgate/config"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, name, want string
	}{
		{"pushgate", "push.result", "pushgate.push.result"},
		{"", " channel/bark ", "channel_bark"},
		{"pushgate", "group..dispatch.", "pushgate.group.dispatch"},
		{"pushgate", "multi  space", "pushgate.multi__space"},
		{"pushgate", "", ""},
		{"pushgate", "...", ""},
	}

	for _, tt := range tests {
		if got := metricName(tt.prefix, tt.name); got != tt.want {
			t.Fatalf("metricName(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestLineMergesAndSortsTags(t *testing.T) {
	t.Parallel()

	c := &Client{
		prefix: "pushgate",
		//nolint:gocritic // whitespace is part of the test case
		globalTags: cleanTags(map[string]string{"env": "prod", " service ": " consumer "}),
	}

	got := c.line("push.result", "1", "c", map[string]string{
		"channel": " wecom ",
		"":        "ignored",
		"env":     "stage",
	})
	want := "pushgate.push.result:1|c|#channel:wecom,env:stage,service:consumer"
	if got != want {
		t.Fatalf("line mismatch\n got: %q\nwant: %q", got, want)
	}

	if c.globalTags["env"] != "prod" {
		t.Fatal("per-call tags leaked into global tags")
	}
}

func TestLineWithoutTags(t *testing.T) {
	t.Parallel()

	c := &Client{globalTags: map[string]string{}}
	if got := c.line("reaper.requeued", "3", "c", nil); got != "reaper.requeued:3|c" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestTimingUsesMilliseconds(t *testing.T) {
	t.Parallel()

	pc, client := listenClient(t, "")

	client.Timing("push.duration", 1500*time.Microsecond, nil)

	if got := readLine(t, pc); got != "push.duration:1.5|ms" {
		t.Fatalf("got %q", got)
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{conn: clientConn}
	if !client.Enabled() {
		t.Fatal("expected client with a connection to be enabled")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client to be disabled after Close")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	// Sends after Close are dropped rather than panicking.
	client.Count("push.result", 1, nil)

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	nilClient.Gauge("group.members", 2, nil)
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromConfigEmitsPrefixedLines(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	client, err := NewFromConfig(config.ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: pc.LocalAddr().String(),
		Prefix:        ".pushgate.",
	}, nil, map[string]string{"service": "consumer"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	client.Count("push.result", 1, map[string]string{"channel": "bark"})

	want := "pushgate.push.result:1|c|#channel:bark,service:consumer"
	if got := readLine(t, pc); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNewFromConfigDisabled(t *testing.T) {
	t.Parallel()

	client, err := NewFromConfig(config.ObservabilityMetricsConfig{StatsdAddress: "127.0.0.1:8125"}, nil, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected disabled client")
	}
}

func listenClient(t *testing.T, prefix string) (net.PacketConn, *Client) {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })

	client, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String(), Prefix: prefix})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return pc, client
}

func readLine(t *testing.T, pc net.PacketConn) string {
	t.Helper()

	buf := make([]byte, 512)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(buf[:n])
}
