package webhook

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

func TestTargetPolicy_Check(t *testing.T) {
	t.Parallel()

	strict := TargetPolicy{}
	dev := TargetPolicy{AllowPrivate: true}

	tests := []struct {
		name    string
		policy  TargetPolicy
		url     string
		wantErr error
	}{
		{"public ip", strict, "https://93.184.216.34/hooks/smartdiet", nil},
		{"explicit 443", strict, "https://93.184.216.34:443/hooks", nil},
		{"plain http", strict, "http://93.184.216.34/hooks", ErrInvalidScheme},
		{"ftp", strict, "ftp://93.184.216.34/hooks", ErrInvalidScheme},
		{"no host", strict, "https:///hooks", ErrEmptyHost},
		{"localhost", strict, "https://localhost/hooks", ErrLocalhostBlocked},
		{"localhost subdomain", strict, "https://api.localhost/hooks", ErrLocalhostBlocked},
		{"mdns name", strict, "https://clinic-pc.local/hooks", ErrLocalhostBlocked},
		{"loopback v4", strict, "https://127.0.0.1/hooks", ErrLocalhostBlocked},
		{"loopback v6", strict, "https://[::1]/hooks", ErrLocalhostBlocked},
		{"private v4", strict, "https://10.1.2.3/hooks", ErrPrivateIP},
		{"cgnat", strict, "https://100.64.10.1/hooks", ErrPrivateIP},
		{"v4-mapped private", strict, "https://[::ffff:192.168.1.10]/hooks", ErrPrivateIP},
		{"custom port", strict, "https://93.184.216.34:8443/hooks", ErrInvalidPort},
		{"unparseable", strict, "https://bad host/%zz", ErrInvalidURL},
		{"dev allows http localhost", dev, "http://localhost:9000/hooks", nil},
		{"dev allows private", dev, "http://10.0.0.5:8080/hooks", nil},
		{"dev still rejects ftp", dev, "ftp://10.0.0.5/hooks", ErrInvalidScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if err := tt.policy.Check(context.Background(), tt.url); !errors.Is(err, tt.wantErr) {
				t.Errorf("Check(%q) = %v, want %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestIsBlockedAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr    string
		blocked bool
	}{
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.32.0.1", false},
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"::1", true},
		{"fd12:3456::1", true},
		{"fe80::1", true},
		{"::ffff:10.0.0.1", true},
		{"8.8.8.8", false},
		{"2606:4700::1111", false},
	}

	for _, tt := range tests {
		if got := isBlockedAddr(netip.MustParseAddr(tt.addr)); got != tt.blocked {
			t.Errorf("isBlockedAddr(%s) = %v, want %v", tt.addr, got, tt.blocked)
		}
	}
}

func TestDialControl(t *testing.T) {
	t.Parallel()

	if err := dialControl("tcp", "10.0.0.1:443", nil); !errors.Is(err, ErrPrivateIP) {
		t.Errorf("dialControl private = %v, want ErrPrivateIP", err)
	}
	if err := dialControl("tcp6", "[fe80::1]:443", nil); !errors.Is(err, ErrPrivateIP) {
		t.Errorf("dialControl link-local = %v, want ErrPrivateIP", err)
	}
	if err := dialControl("tcp", "8.8.8.8:443", nil); err != nil {
		t.Errorf("dialControl public = %v, want nil", err)
	}
}

func TestTargetHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{"https://clinic.example/hooks?token=abc", "clinic.example"},
		{"https://clinic.example:443/v1", "clinic.example:443"},
		{"://nope", ""},
	}

	for _, tt := range tests {
		if got := TargetHost(tt.url); got != tt.want {
			t.Errorf("TargetHost(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
