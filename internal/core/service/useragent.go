package service

import "strings"

const unknown = "Unknown"

// detectDevice reports mobile, tablet or desktop. iPad counts as a tablet,
// every other handheld marker as mobile.
func detectDevice(ua string) string {
	if containsAny(ua, "Mobile", "Android", "iPhone", "iPad") {
		if strings.Contains(ua, "iPad") {
			return "tablet"
		}
		return "mobile"
	}
	return "desktop"
}

// Order matters: Chrome and Edge user agents also contain "Safari".
var browserMarkers = []struct{ marker, name string }{
	{"Chrome", "Chrome"},
	{"Firefox", "Firefox"},
	{"Safari", "Safari"},
	{"Edge", "Edge"},
	{"Opera", "Opera"},
}

var osMarkers = []struct{ marker, name string }{
	{"Windows", "Windows"},
	{"Mac OS X", "macOS"},
	{"Linux", "Linux"},
	{"Android", "Android"},
	{"iOS", "iOS"},
}

func detectBrowser(ua string) string {
	for _, b := range browserMarkers {
		if strings.Contains(ua, b.marker) {
			return b.name
		}
	}
	return unknown
}

func detectOS(ua string) string {
	for _, o := range osMarkers {
		if strings.Contains(ua, o.marker) {
			return o.name
		}
	}
	return unknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
