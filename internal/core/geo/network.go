package geo

import (
	"fmt"
	"strings"
)

// Network quality levels.
const (
	QualityGood    = "good"
	QualityFair    = "fair"
	QualityPoor    = "poor"
	QualityUnknown = "unknown"
)

// vpnThreshold is the confidence above which a VPN is considered likely.
const vpnThreshold = 50

var vpnAgentPatterns = []string{"vpn", "proxy", "tunnel", "tor"}

// NetworkSignals is what the client reports about its connection. RTT is in
// milliseconds and Downlink in Mbit/s, as the browser Network Information API
// exposes them. Nil means the client did not report the value.
type NetworkSignals struct {
	UserAgent      string
	Timezone       string
	ConnectionType string
	Secure         bool
	RTT            *float64
	Downlink       *float64
}

func (s NetworkSignals) hasConnection() bool {
	return s.RTT != nil || s.Downlink != nil || s.ConnectionType != ""
}

// VPNAssessment is a heuristic guess, not a detection.
type VPNAssessment struct {
	IsVPNLikely bool     `json:"isVpnLikely"`
	Confidence  int      `json:"confidence"`
	Reasons     []string `json:"reasons"`
}

// DetectVPN scores the signals. Each matching user agent pattern adds 40,
// an RTT above 200ms adds 30, a cellular connection over HTTPS adds 20 and a
// timezone other than DefaultTimezone adds 25.
func DetectVPN(s NetworkSignals) VPNAssessment {
	a := VPNAssessment{Reasons: []string{}}

	if s.RTT != nil && *s.RTT > 200 {
		a.Confidence += 30
		a.Reasons = append(a.Reasons, "High latency detected")
	}
	if s.ConnectionType == "cellular" && s.Secure {
		a.Confidence += 20
		a.Reasons = append(a.Reasons, "Cellular with HTTPS")
	}

	ua := strings.ToLower(s.UserAgent)
	for _, p := range vpnAgentPatterns {
		if strings.Contains(ua, p) {
			a.Confidence += 40
			a.Reasons = append(a.Reasons, "VPN pattern in user agent")
		}
	}

	if s.Timezone != "" && s.Timezone != DefaultTimezone {
		a.Confidence += 25
		a.Reasons = append(a.Reasons, fmt.Sprintf("Timezone mismatch: %s vs %s", s.Timezone, DefaultTimezone))
	}

	a.IsVPNLikely = a.Confidence > vpnThreshold
	return a
}

// NetworkQuality grades the reported connection.
type NetworkQuality struct {
	Quality     string   `json:"quality"`
	RTT         float64  `json:"rtt"`
	Downlink    float64  `json:"downlink"`
	Suggestions []string `json:"suggestions"`
}

// AssessNetworkQuality grades latency and bandwidth. Without any connection
// signal the quality is unknown.
func AssessNetworkQuality(s NetworkSignals) NetworkQuality {
	if !s.hasConnection() {
		return NetworkQuality{Quality: QualityUnknown, Suggestions: []string{"Unable to assess network quality"}}
	}

	q := NetworkQuality{Quality: QualityGood, Suggestions: []string{}}
	if s.RTT != nil {
		q.RTT = *s.RTT
	}
	if s.Downlink != nil {
		q.Downlink = *s.Downlink
	}

	switch {
	case q.RTT > 500:
		q.Quality = QualityPoor
		q.Suggestions = append(q.Suggestions, "High latency detected - try switching VPN servers")
	case q.RTT > 200:
		q.Quality = QualityFair
		q.Suggestions = append(q.Suggestions, "Moderate latency - VPN may be causing delays")
	}

	if q.Downlink < 1 {
		q.Quality = QualityPoor
		q.Suggestions = append(q.Suggestions, "Slow connection - consider upgrading VPN plan")
	}
	return q
}
