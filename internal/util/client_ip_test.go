package util

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestClientIP(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.10", "fd00::/8"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xrip       string
		trusted    *TrustedProxies
		want       string
	}{
		{
			name:       "reader behind no proxy config keeps peer address",
			remoteAddr: "198.51.100.10:1234",
			xff:        "203.0.113.5",
			xrip:       "203.0.113.6",
			want:       "198.51.100.10",
		},
		{
			name:       "untrusted peer cannot spoof forwarded login ip",
			remoteAddr: "198.51.100.10:1234",
			xff:        "203.0.113.5",
			trusted:    trusted,
			want:       "198.51.100.10",
		},
		{
			name:       "trusted proxy forwards reader ip",
			remoteAddr: "10.0.0.20:1234",
			xff:        "203.0.113.5",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "chain walks past trusted hops from the right",
			remoteAddr: "10.0.0.20:1234",
			xff:        "198.51.100.1, 203.0.113.5, 10.0.0.10",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip used when forwarded-for is garbage",
			remoteAddr: "192.168.1.10:1234",
			xff:        "invalid",
			xrip:       "203.0.113.7",
			trusted:    trusted,
			want:       "203.0.113.7",
		},
		{
			name:       "every hop trusted returns leftmost",
			remoteAddr: "10.0.0.20:1234",
			xff:        "10.0.0.5, 10.0.0.10",
			trusted:    trusted,
			want:       "10.0.0.5",
		},
		{
			name:       "ipv4-mapped peer matches ipv4 range",
			remoteAddr: "[::ffff:10.0.0.20]:1234",
			xff:        "203.0.113.9",
			trusted:    trusted,
			want:       "203.0.113.9",
		},
		{
			name:       "ipv6 proxy range",
			remoteAddr: "[fd00::1]:443",
			xff:        "2001:db8::7",
			trusted:    trusted,
			want:       "2001:db8::7",
		},
		{
			name:       "unparsable remote addr is returned as is",
			remoteAddr: "pipe",
			trusted:    trusted,
			want:       "pipe",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/login", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xrip != "" {
				req.Header.Set("X-Real-IP", tc.xrip)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{" 10.1.2.3/8 ", "192.168.1.1", ""})
	if err != nil {
		t.Fatalf("expected valid entries, got err: %v", err)
	}
	if !trusted.Contains(netip.MustParseAddr("10.200.0.1")) {
		t.Fatalf("expected masked prefix to contain 10.200.0.1")
	}
	if trusted.Contains(netip.MustParseAddr("192.168.1.2")) {
		t.Fatalf("bare ip should match only itself")
	}
	for _, bad := range []string{"bad-cidr", "10.0.0.0/33"} {
		if _, err := NewTrustedProxies([]string{bad}); err == nil {
			t.Fatalf("expected parse error for %q", bad)
		}
	}
	empty, err := NewTrustedProxies([]string{" "})
	if err != nil || empty != nil {
		t.Fatalf("empty entries = %v, %v; want nil, nil", empty, err)
	}
	if empty.Contains(netip.MustParseAddr("10.0.0.1")) {
		t.Fatalf("nil allowlist must trust nobody")
	}
}
