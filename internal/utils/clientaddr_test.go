package utils

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "203.0.113.7", want: "203.0.113.7", ok: true},
		{in: "203.0.113.7:4242", want: "203.0.113.7", ok: true},
		{in: "[2001:db8::1]:443", want: "2001:db8::1", ok: true},
		{in: " 2001:db8::1 ", want: "2001:db8::1", ok: true},
		{in: "::ffff:10.0.0.1", want: "10.0.0.1", ok: true},
		{in: "fe80::1%eth0", want: "fe80::1", ok: true},
		{in: "", ok: false},
		{in: "not-an-ip", ok: false},
		{in: "showcase.domain.ext:80", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			addr, ok := ParseAddr(tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, addr.String())
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{
			name:    "headers ignored without trusted proxy",
			remote:  "192.0.2.10:5000",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7", "CF-Connecting-IP": "203.0.113.8"},
			want:    "192.0.2.10",
		},
		{
			name:       "cloudflare header first",
			remote:     "127.0.0.1:5000",
			headers:    map[string]string{"CF-Connecting-IP": "203.0.113.8", "X-Forwarded-For": "203.0.113.7"},
			trustProxy: true,
			want:       "203.0.113.8",
		},
		{
			name:       "left-most forwarded hop",
			remote:     "127.0.0.1:5000",
			headers:    map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.2, 10.0.0.3"},
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "real ip as last resort",
			remote:     "127.0.0.1:5000",
			headers:    map[string]string{"X-Real-IP": "[2001:db8::5]:80"},
			trustProxy: true,
			want:       "2001:db8::5",
		},
		{
			name:       "garbage header skipped",
			remote:     "127.0.0.1:5000",
			headers:    map[string]string{"CF-Connecting-IP": "evil", "X-Forwarded-For": "203.0.113.9"},
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "no usable header falls back to remote",
			remote:     "127.0.0.1:5000",
			headers:    map[string]string{"X-Forwarded-For": "unknown"},
			trustProxy: true,
			want:       "127.0.0.1",
		},
		{
			name:   "unparseable remote kept verbatim",
			remote: "pipe",
			want:   "pipe",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.trustProxy))
		})
	}
}

func TestAddrSet(t *testing.T) {
	set, invalid := NewAddrSet([]string{"10.0.0.0/8", " 192.0.2.10 ", "2001:db8::/32", "::ffff:172.16.0.0/108", "", "bogus"})
	assert.Equal(t, []string{"bogus"}, invalid)
	assert.Equal(t, 4, set.Len())

	for addr, want := range map[string]bool{
		"10.200.3.4":      true,
		"192.0.2.10":      true,
		"192.0.2.11":      false,
		"2001:db8:1::9":   true,
		"2001:db9::1":     false,
		"::ffff:10.1.1.1": true,
		"172.16.4.5":      true,
		"172.32.0.1":      false,
	} {
		assert.Equal(t, want, set.Contains(netip.MustParseAddr(addr)), addr)
	}
}

func TestAddrSetEmpty(t *testing.T) {
	set, invalid := NewAddrSet(nil)
	assert.Empty(t, invalid)
	assert.Zero(t, set.Len())
	assert.False(t, set.Contains(netip.MustParseAddr("127.0.0.1")))
}
