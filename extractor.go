package qibla

import (
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/mssola/useragent"
)

// DeviceInfo describes the client device as far as the compass cares.
type DeviceInfo struct {
	IP         string `json:"ip"`
	UserAgent  string `json:"user_agent"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"` // mobile, desktop, tablet, bot

	// OrientationPermission is true on platforms that only deliver orientation
	// events after an explicit, user-gesture-triggered permission request.
	OrientationPermission bool `json:"orientation_permission"`
}

// ExtractDeviceInfo extracts device information from an HTTP request.
func ExtractDeviceInfo(r *http.Request) DeviceInfo {
	info := ParseUserAgent(r.UserAgent())
	info.IP = extractIP(r)
	return info
}

// ParseUserAgent classifies a user agent string.
func ParseUserAgent(ua string) DeviceInfo {
	parsed := useragent.New(ua)
	browser, browserVersion := parsed.Browser()
	if browserVersion != "" {
		browser = browser + " " + browserVersion
	}

	osInfo := parsed.OSInfo()
	os := osInfo.Name
	if osInfo.Version != "" {
		os = os + " " + osInfo.Version
	}

	deviceType := "desktop"
	if parsed.Bot() {
		deviceType = "bot"
	} else if isTablet(ua) {
		deviceType = "tablet"
	} else if parsed.Mobile() {
		deviceType = "mobile"
	}

	return DeviceInfo{
		UserAgent:             ua,
		Browser:               browser,
		OS:                    os,
		DeviceType:            deviceType,
		OrientationPermission: requiresOrientationPermission(parsed, ua, osInfo.Version),
	}
}

// SensorHint is what the client page reports about its own orientation API.
type SensorHint struct {
	// Supported is false when the page sees no orientation events at all.
	Supported bool

	// PermissionAPI is true when the page finds a permission request function
	// on its orientation event type. iPadOS in desktop mode sends a Macintosh
	// user agent, so this is the only signal that reaches it.
	PermissionAPI bool
}

// SelectSensor picks the orientation provider for a client. Bots and clients
// that report no sensor get UnsupportedSensor; iOS 13 and later, or any client
// reporting a permission API, get a gated provider driven by prompt;
// everything else gets an open provider.
func SelectSensor(ua string, hint SensorHint, feed *EventFeed, prompt PermissionFunc) OrientationSensorProvider {
	info := ParseUserAgent(ua)
	if !hint.Supported || feed == nil || info.DeviceType == "bot" {
		return UnsupportedSensor{}
	}
	if info.OrientationPermission || hint.PermissionAPI {
		return NewGatedSensor(feed, prompt)
	}
	return NewOpenSensor(feed)
}

var iosVersionPattern = regexp.MustCompile(`OS (\d+)[_.]\d`)

// requiresOrientationPermission reports whether the platform gates
// orientation events behind a permission prompt (iPhone, iPad, iPod on iOS 13+).
// Desktop-mode iPadOS looks like a Mac here; see SensorHint.PermissionAPI.
func requiresOrientationPermission(parsed *useragent.UserAgent, ua, osVersion string) bool {
	switch parsed.Platform() {
	case "iPhone", "iPad", "iPod", "iPod touch":
	default:
		if !strings.Contains(ua, "iPhone") && !strings.Contains(ua, "iPad") && !strings.Contains(ua, "iPod") {
			return false
		}
	}

	if m := iosVersionPattern.FindStringSubmatch(ua); m != nil {
		major, _ := strconv.Atoi(m[1])
		return major >= 13
	}
	return majorVersion(osVersion) >= 13
}

// majorVersion parses the leading integer of a dotted or underscored version.
func majorVersion(v string) int {
	v = strings.TrimSpace(v)
	if i := strings.IndexAny(v, "._"); i >= 0 {
		v = v[:i]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// extractIP extracts the client IP from an HTTP request.
// It checks common proxy headers first, then falls back to RemoteAddr.
func extractIP(r *http.Request) string {
	// X-Forwarded-For is a comma-separated list; the first entry is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if isValidIP(ip) {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		ip := strings.TrimSpace(xri)
		if isValidIP(ip) {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return host
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

func isTablet(ua string) bool {
	ua = strings.ToLower(ua)
	for _, keyword := range []string{"ipad", "tablet", "playbook", "silk"} {
		if strings.Contains(ua, keyword) {
			return true
		}
	}
	return false
}
