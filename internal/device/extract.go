// AccessGuard - Access Pattern Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/accessguard

// Package device classifies raw user agent strings into a normalized
// device type, operating system and browser.
package device

import (
	"regexp"
	"strings"

	"github.com/tomtom215/accessguard/internal/models"
)

const (
	TypeDesktop = "desktop"
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"

	Unknown = "Unknown"
)

var (
	tabletPattern = regexp.MustCompile(`(?i)tablet|ipad|playbook|silk`)

	// Case-sensitive on purpose: "Mobile" and "Android" tokens are capitalized in real agents.
	mobilePattern = regexp.MustCompile(`Mobile|iP(hone|od)|Android|BlackBerry|IEMobile|Kindle|NetFront|Silk-Accelerated|(hpw|web)OS|Fennec|Minimo|Opera M(obi|ini)|Blazer|Dolfin|Dolphin|Skyfire|Zune`)
)

// match is a substring rule; first match wins.
type match struct {
	tokens []string
	name   string
}

var osRules = []match{
	{[]string{"windows"}, "Windows"},
	{[]string{"mac os x"}, "macOS"},
	{[]string{"iphone", "ipad"}, "iOS"},
	{[]string{"android"}, "Android"},
	{[]string{"linux"}, "Linux"},
}

// Extract returns the device classification for a user agent. It never fails;
// unrecognized input yields desktop/Unknown/Unknown.
func Extract(userAgent string) models.DeviceInfo {
	lower := strings.ToLower(userAgent)
	return models.DeviceInfo{
		DeviceType: deviceType(userAgent, lower),
		OS:         firstMatch(lower, osRules),
		Browser:    browser(lower),
		IsUnusual:  false,
	}
}

func deviceType(raw, lower string) string {
	if tabletPattern.MatchString(raw) || androidWithoutMobile(lower) {
		return TypeTablet
	}
	if mobilePattern.MatchString(raw) {
		return TypeMobile
	}
	return TypeDesktop
}

// androidWithoutMobile reports whether some "android" token is not followed
// anywhere later by "mobile". RE2 has no lookahead so this is done by hand.
func androidWithoutMobile(lower string) bool {
	idx := strings.LastIndex(lower, "android")
	if idx < 0 {
		return false
	}
	return !strings.Contains(lower[idx+len("android"):], "mobile")
}

func firstMatch(lower string, rules []match) string {
	for _, rule := range rules {
		for _, token := range rule.tokens {
			if strings.Contains(lower, token) {
				return rule.name
			}
		}
	}
	return Unknown
}

func browser(lower string) string {
	switch {
	case strings.Contains(lower, "edg/"):
		return "Edge"
	case strings.Contains(lower, "chrome"):
		return "Chrome"
	case strings.Contains(lower, "firefox"):
		return "Firefox"
	case strings.Contains(lower, "safari"):
		// chrome already handled above
		return "Safari"
	case strings.Contains(lower, "opera"), strings.Contains(lower, "opr/"):
		return "Opera"
	}
	return Unknown
}
