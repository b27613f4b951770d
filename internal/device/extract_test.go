// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

package device

import (
	"testing"

	"github.com/tomtom215/accessguard/internal/models"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want models.DeviceInfo
	}{
		{
			name: "chrome on windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: models.DeviceInfo{DeviceType: TypeDesktop, OS: "Windows", Browser: "Chrome"},
		},
		{
			name: "edge on windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			want: models.DeviceInfo{DeviceType: TypeDesktop, OS: "Windows", Browser: "Edge"},
		},
		{
			name: "safari on macos",
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
			want: models.DeviceInfo{DeviceType: TypeDesktop, OS: "macOS", Browser: "Safari"},
		},
		{
			name: "iphone safari",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			want: models.DeviceInfo{DeviceType: TypeMobile, OS: "macOS", Browser: "Safari"},
		},
		{
			name: "ipad is a tablet",
			ua:   "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			want: models.DeviceInfo{DeviceType: TypeTablet, OS: "macOS", Browser: "Safari"},
		},
		{
			name: "android phone",
			ua:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			want: models.DeviceInfo{DeviceType: TypeMobile, OS: "Android", Browser: "Chrome"},
		},
		{
			name: "android tablet without mobile token",
			ua:   "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: models.DeviceInfo{DeviceType: TypeTablet, OS: "Android", Browser: "Chrome"},
		},
		{
			name: "firefox on linux",
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want: models.DeviceInfo{DeviceType: TypeDesktop, OS: "Linux", Browser: "Firefox"},
		},
		{
			name: "opera via opr token",
			ua:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) OPR/105.0.0.0",
			want: models.DeviceInfo{DeviceType: TypeDesktop, OS: "Linux", Browser: "Opera"},
		},
		{
			name: "empty string",
			ua:   "",
			want: models.DeviceInfo{DeviceType: TypeDesktop, OS: Unknown, Browser: Unknown},
		},
		{
			name: "garbage",
			ua:   "\x00\xff}{curl",
			want: models.DeviceInfo{DeviceType: TypeDesktop, OS: Unknown, Browser: Unknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.ua)
			if got != tt.want {
				t.Errorf("Extract() = %+v, want %+v", got, tt.want)
			}
			if got.IsUnusual {
				t.Error("IsUnusual must never be set by Extract")
			}
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	ua := "Mozilla/5.0 (Linux; Android 14) Mobile Firefox/120.0"
	first := Extract(ua)
	for i := 0; i < 10; i++ {
		if got := Extract(ua); got != first {
			t.Fatalf("iteration %d: Extract() = %+v, want %+v", i, got, first)
		}
	}
}

func TestMobileTokensAreCaseSensitive(t *testing.T) {
	if got := Extract("some agent with mobile in lowercase").DeviceType; got != TypeDesktop {
		t.Errorf("DeviceType = %s, want %s", got, TypeDesktop)
	}
}
