package useragent

import (
	"net"
	"net/http"
	"strings"
)

type marker struct {
	token   string
	exclude string
	name    string
}

// Order matters: Edge and Chrome both advertise Safari, Chrome advertises Safari too.
var browsers = []marker{
	{token: "Edg/", name: "Edge"},
	{token: "Firefox/", name: "Firefox"},
	{token: "Chrome/", exclude: "Edg", name: "Chrome"},
	{token: "Safari/", exclude: "Chrome", name: "Safari"},
}

var systems = []marker{
	{token: "Windows", name: "Windows"},
	{token: "Android", name: "Android"},
	{token: "iPhone", name: "iOS"},
	{token: "iPad", name: "iOS"},
	{token: "Mac OS X", name: "macOS"},
	{token: "Linux", name: "Linux"},
}

// ExtractDeviceInfo turns the User-Agent header into "Browser 120 on OS".
func ExtractDeviceInfo(r *http.Request) string {
	ua := r.Header.Get("User-Agent")
	if ua == "" {
		return "Unknown Device"
	}

	browser, version := "Unknown Browser", ""
	for _, m := range browsers {
		idx := strings.Index(ua, m.token)
		if idx == -1 || (m.exclude != "" && strings.Contains(ua, m.exclude)) {
			continue
		}
		browser = m.name
		version = majorVersion(ua[idx+len(m.token):])
		break
	}

	os := "Unknown OS"
	for _, m := range systems {
		if strings.Contains(ua, m.token) {
			os = m.name
			break
		}
	}

	if version != "" {
		return browser + " " + version + " on " + os
	}
	return browser + " on " + os
}

func majorVersion(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// ExtractIPAddress prefers proxy headers over the socket address.
func ExtractIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
