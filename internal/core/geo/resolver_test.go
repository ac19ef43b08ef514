package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverProvider(t *testing.T, name string, delay time.Duration, status int, body string, parse func([]byte) (Location, error)) Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return Provider{
		Name:    name,
		Timeout: time.Second,
		URL:     func(Query) string { return srv.URL },
		Parse:   parse,
	}
}

func TestResolve_PriorityOrderWins(t *testing.T) {
	r := NewResolver("test",
		serverProvider(t, "coords", 100*time.Millisecond, http.StatusOK,
			`{"address":{"city":"Mumbai","country":"India","state":"Maharashtra"}}`, parseNominatim),
		serverProvider(t, "ip", 0, http.StatusOK,
			`{"city":"Ashburn","country":"United States","regionName":"Virginia","timezone":"America/New_York"}`, parseIPAPI),
	)

	got := r.Resolve(context.Background(), Query{Lat: 19.07, Lon: 72.87, ClientIP: "8.8.8.8"})
	assert.Equal(t, Location{City: "Mumbai", Country: "India", Region: "Maharashtra", Timezone: DefaultTimezone, Service: "coords"}, got)
}

func TestResolve_FallsBackPastFailures(t *testing.T) {
	r := NewResolver("test",
		serverProvider(t, "down", 0, http.StatusBadGateway, ``, parseBigDataCloud),
		serverProvider(t, "unknown", 0, http.StatusOK, `{"city":"Unknown"}`, parseIPAPI),
		serverProvider(t, "third", 20*time.Millisecond, http.StatusOK,
			`{"address":{"town":"Pune","country":"India","state":"Maharashtra"}}`, parseNominatim),
	)

	got := r.Resolve(context.Background(), Query{Lat: 18.52, Lon: 73.85})
	assert.Equal(t, Location{City: "Pune", Country: "India", Region: "Maharashtra", Timezone: DefaultTimezone, Service: "third"}, got)
}

func TestResolve_DoesNotWaitForLowerPriority(t *testing.T) {
	r := NewResolver("test",
		serverProvider(t, "first", 0, http.StatusOK, `{"city":"Pune","country":"India"}`, parseIPAPI),
		serverProvider(t, "slow", 2*time.Second, http.StatusOK, `{"city":"Late"}`, parseIPAPI),
	)

	start := time.Now()
	got := r.Resolve(context.Background(), Query{Lat: 1, Lon: 1})
	assert.Equal(t, "first", got.Service)
	assert.Less(t, time.Since(start), time.Second)
}

func TestIPAPIProvider_UsesClientIP(t *testing.T) {
	var ipapi Provider
	for _, p := range DefaultProviders() {
		if p.Name == "IP-API" {
			ipapi = p
		}
	}
	require.NotNil(t, ipapi.URL)

	assert.Equal(t, "https://ip-api.com/json/8.8.8.8", ipapi.URL(Query{ClientIP: "8.8.8.8"}))
	for _, ip := range []string{"", "127.0.0.1", "10.0.0.4", "192.168.1.10", "not-an-ip"} {
		assert.Empty(t, ipapi.URL(Query{Lat: 19.07, Lon: 72.87, ClientIP: ip}), ip)
	}
}

func TestResolve_SkippedProviderIsNotQueried(t *testing.T) {
	skipped := Provider{
		Name:  "skipped",
		URL:   func(Query) string { return "" },
		Parse: parseIPAPI,
	}
	got := NewResolver("test", skipped).Resolve(context.Background(), Query{Lat: 1, Lon: 1})
	assert.Equal(t, DefaultLocation(), got)
}

func TestResolve_AllFail(t *testing.T) {
	r := NewResolver("test",
		serverProvider(t, "down", 0, http.StatusBadGateway, ``, parseIPAPI),
		serverProvider(t, "garbage", 0, http.StatusOK, `{`, parseIPAPI),
		serverProvider(t, "empty", 0, http.StatusOK, `{}`, parseBigDataCloud),
	)

	assert.Equal(t, DefaultLocation(), r.Resolve(context.Background(), Query{Lat: 1, Lon: 1}))
}

func TestResolve_ProviderTimeout(t *testing.T) {
	slow := serverProvider(t, "slow", time.Second, http.StatusOK, `{"city":"Late"}`, parseIPAPI)
	slow.Timeout = 20 * time.Millisecond

	start := time.Now()
	got := NewResolver("test", slow).Resolve(context.Background(), Query{Lat: 1, Lon: 1})
	assert.Equal(t, DefaultLocation(), got)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestParseBigDataCloud(t *testing.T) {
	loc, err := parseBigDataCloud([]byte(`{
		"locality":"Andheri","principalSubdivision":"Maharashtra","countryCode":"IN",
		"localityInfo":{"administrative":[{"timezone":"Asia/Kolkata"}]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, Location{City: "Andheri", Country: "IN", Region: "Maharashtra", Timezone: "Asia/Kolkata"}, loc)
}

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		wantLat  float64
		wantLon  float64
		wantErr  bool
	}{
		{"rounds", 18.5204303, 73.8567437, 18.52043, 73.856744, false},
		{"zero latitude", 0, 73.8, 0, 0, true},
		{"latitude too high", 91, 10, 0, 0, true},
		{"longitude too low", 10, -181, 0, 0, true},
		{"edges", -90, 180, -90, 180, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, err := ValidateCoordinates(tt.lat, tt.lon)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidCoordinates)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantLat, lat, 1e-9)
			assert.InDelta(t, tt.wantLon, lon, 1e-9)
		})
	}
}
