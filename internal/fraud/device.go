package fraud

import (
	"strings"

	"github.com/promotrack/promotrack/internal/model"
)

// botSignatures are lower-case user agent substrings of automated clients.
var botSignatures = []string{
	"bot",
	"crawler",
	"spider",
	"scraper",
	"curl",
	"wget",
	"python-requests",
	"python-urllib",
	"go-http-client",
	"java/",
	"okhttp",
	"libwww-perl",
	"httpclient",
	"axios",
	"node-fetch",
	"postman",
	"headless",
	"phantomjs",
	"selenium",
	"scrapy",
}

// MatchBotSignature returns the first denylisted substring found in ua.
func MatchBotSignature(ua string) (string, bool) {
	lower := strings.ToLower(ua)
	for _, sig := range botSignatures {
		if strings.Contains(lower, sig) {
			return sig, true
		}
	}
	return "", false
}

// DetectDevice classifies a user agent.
func DetectDevice(ua string) model.DeviceType {
	if strings.TrimSpace(ua) == "" {
		return model.DeviceUnknown
	}
	if _, ok := MatchBotSignature(ua); ok {
		return model.DeviceBot
	}

	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "ipad"),
		strings.Contains(lower, "tablet"),
		strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		return model.DeviceTablet
	case strings.Contains(lower, "mobile"),
		strings.Contains(lower, "iphone"),
		strings.Contains(lower, "ipod"),
		strings.Contains(lower, "windows phone"):
		return model.DeviceMobile
	case strings.Contains(lower, "windows"),
		strings.Contains(lower, "macintosh"),
		strings.Contains(lower, "x11"),
		strings.Contains(lower, "linux"),
		strings.Contains(lower, "cros"):
		return model.DeviceDesktop
	default:
		return model.DeviceUnknown
	}
}
