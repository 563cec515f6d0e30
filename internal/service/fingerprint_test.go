package service

import (
	"strings"
	"testing"
)

func TestDeviceFingerprint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		userAgent string
		want      string
	}{
		{
			"desktop browser",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			"Windows_Windows NT 10.0; Win64; x64",
		},
		{
			"mobile browser",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)",
			"iPhone_iPhone; CPU iPhone OS 17_0 like Mac OS X",
		},
		{
			"empty header",
			"",
			"_",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeviceFingerprint(tc.userAgent); got != tc.want {
				t.Fatalf("DeviceFingerprint(%q) = %q, want %q", tc.userAgent, got, tc.want)
			}
		})
	}
}

func TestDeviceFingerprint_Capped(t *testing.T) {
	t.Parallel()

	ua := "Mozilla/5.0 (" + strings.Repeat("x", 300) + ") Linux"
	if got := DeviceFingerprint(ua); len(got) > 100 {
		t.Fatalf("fingerprint length %d exceeds cap", len(got))
	}
}
