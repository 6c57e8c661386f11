package service

import (
	"strings"

	"github.com/mssola/useragent"
)

// DescribeClient renders a User-Agent as "Browser on OS" for audit metadata.
func DescribeClient(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "Unknown Device"
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "Bot " + fallback(name, "unknown")
	}
	name, _ := ua.Browser()
	os := ua.OS()
	if os == "" {
		os = ua.Platform()
	}
	return fallback(name, "Unknown Browser") + " on " + fallback(os, "Unknown OS")
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
