package internal

import "strings"

type uaRule struct {
	needle string
	name   string
}

// Order matters: Edge and Opera advertise Chrome, Chrome advertises Safari.
var browserRules = []uaRule{
	{"Edg/", "Edge"},
	{"OPR/", "Opera"},
	{"Firefox/", "Firefox"},
	{"Chrome/", "Chrome"},
	{"CriOS/", "Chrome"},
	{"Safari/", "Safari"},
	{"curl/", "curl"},
}

var platformRules = []uaRule{
	{"iPhone", "iOS"},
	{"iPad", "iPadOS"},
	{"Android", "Android"},
	{"Windows", "Windows"},
	{"Mac OS X", "macOS"},
	{"Macintosh", "macOS"},
	{"CrOS", "ChromeOS"},
	{"Linux", "Linux"},
}

// DescribeDevice turns a User-Agent header into a short label such as
// "Chrome on macOS". Unknown parts are reported as "Unknown".
func DescribeDevice(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return "Unknown device"
	}
	browser := match(userAgent, browserRules)
	platform := match(userAgent, platformRules)
	if browser == "" && platform == "" {
		return "Unknown device"
	}
	if browser == "" {
		browser = "Unknown browser"
	}
	if platform == "" {
		return browser
	}
	return browser + " on " + platform
}

func match(ua string, rules []uaRule) string {
	for _, r := range rules {
		if strings.Contains(ua, r.needle) {
			return r.name
		}
	}
	return ""
}
