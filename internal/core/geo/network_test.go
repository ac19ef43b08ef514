package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f64(v float64) *float64 { return &v }

func TestDetectVPN(t *testing.T) {
	tests := []struct {
		name       string
		signals    NetworkSignals
		confidence int
		likely     bool
	}{
		{"clean local client", NetworkSignals{UserAgent: "Mozilla/5.0 (Linux; Android 14)", Timezone: "Asia/Kolkata", RTT: f64(80)}, 0, false},
		{"foreign timezone only", NetworkSignals{Timezone: "Europe/Amsterdam"}, 25, false},
		{"latency and timezone", NetworkSignals{Timezone: "Europe/Amsterdam", RTT: f64(350)}, 55, true},
		{"vpn agent", NetworkSignals{UserAgent: "SomeVPN Client"}, 40, false},
		{"two agent patterns", NetworkSignals{UserAgent: "vpn proxy"}, 80, true},
		{"cellular over https", NetworkSignals{ConnectionType: "cellular", Secure: true, RTT: f64(250)}, 50, false},
		{"cellular over http", NetworkSignals{ConnectionType: "cellular"}, 0, false},
		{"no timezone reported", NetworkSignals{UserAgent: "Mozilla/5.0"}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectVPN(tt.signals)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Equal(t, tt.likely, got.IsVPNLikely)
			assert.NotNil(t, got.Reasons)
		})
	}
}

func TestDetectVPN_Reasons(t *testing.T) {
	got := DetectVPN(NetworkSignals{Timezone: "UTC", RTT: f64(201)})
	assert.Equal(t, []string{"High latency detected", "Timezone mismatch: UTC vs Asia/Kolkata"}, got.Reasons)
}

func TestAssessNetworkQuality(t *testing.T) {
	tests := []struct {
		name        string
		signals     NetworkSignals
		quality     string
		suggestions int
	}{
		{"no signals", NetworkSignals{UserAgent: "x"}, QualityUnknown, 1},
		{"good", NetworkSignals{RTT: f64(50), Downlink: f64(10)}, QualityGood, 0},
		{"fair latency", NetworkSignals{RTT: f64(300), Downlink: f64(5)}, QualityFair, 1},
		{"poor latency", NetworkSignals{RTT: f64(600), Downlink: f64(5)}, QualityPoor, 1},
		{"slow link", NetworkSignals{RTT: f64(300), Downlink: f64(0.5)}, QualityPoor, 2},
		{"type only", NetworkSignals{ConnectionType: "wifi"}, QualityPoor, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssessNetworkQuality(tt.signals)
			assert.Equal(t, tt.quality, got.Quality)
			assert.Len(t, got.Suggestions, tt.suggestions)
		})
	}
}
