// Package geo resolves coordinates to a city and country through several
// public reverse-geocoding services queried concurrently, and grades client
// network conditions.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/game-session-service/middleware"
)

// DefaultTimezone is reported when no provider supplies one.
const DefaultTimezone = "Asia/Kolkata"

const unknown = "Unknown"

// ErrInvalidCoordinates is returned by ValidateCoordinates.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Location is a resolved place.
type Location struct {
	City     string `json:"city"`
	Country  string `json:"country"`
	Region   string `json:"region"`
	Timezone string `json:"timezone"`
	Service  string `json:"service,omitempty"`
}

// DefaultLocation is returned when every provider fails.
func DefaultLocation() Location {
	return Location{City: unknown, Country: unknown, Region: unknown, Timezone: DefaultTimezone}
}

func (l Location) usable() bool {
	return l.City != "" && l.City != unknown
}

// Query is one lookup. ClientIP is only used by IP-based providers.
type Query struct {
	Lat      float64
	Lon      float64
	ClientIP string
}

// Provider is one reverse-geocoding service. URL returns "" when the
// provider cannot answer the query; it is then skipped.
type Provider struct {
	Name    string
	Timeout time.Duration
	URL     func(q Query) string
	Parse   func(body []byte) (Location, error)
}

var errSkipped = errors.New("provider not applicable")

// Resolver queries its providers concurrently.
type Resolver struct {
	providers  []Provider
	httpClient *http.Client
	userAgent  string
}

// NewResolver creates a Resolver. With no providers it uses DefaultProviders.
// Providers are listed in priority order.
func NewResolver(userAgent string, providers ...Provider) *Resolver {
	if len(providers) == 0 {
		providers = DefaultProviders()
	}
	return &Resolver{
		providers:  providers,
		httpClient: &http.Client{},
		userAgent:  userAgent,
	}
}

// Resolve queries every provider at once and returns the usable answer of the
// highest-priority provider. It returns as soon as every provider ahead of
// that one has failed, without waiting for lower-priority ones. If none is
// usable it returns DefaultLocation.
func (r *Resolver) Resolve(ctx context.Context, q Query) Location {
	ctx, span := middleware.StartSpan(ctx, "geo.resolve", trace.WithAttributes(
		attribute.String("layer", "client"),
		attribute.Int("geo.providers", len(r.providers)),
	))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		index int
		loc   Location
		err   error
	}
	results := make(chan outcome, len(r.providers))
	for i, p := range r.providers {
		go func(i int, p Provider) {
			loc, err := r.query(ctx, p, q)
			results <- outcome{index: i, loc: loc, err: err}
		}(i, p)
	}

	logger := zerolog.Ctx(ctx)
	settled := make([]*outcome, len(r.providers))
	next := 0
	for range r.providers {
		res := <-results
		settled[res.index] = &res
		if res.err != nil && !errors.Is(res.err, errSkipped) {
			logger.Debug().Err(res.err).Str("provider", r.providers[res.index].Name).Msg("Geocoding provider failed")
		}

		for next < len(settled) && settled[next] != nil {
			if got := settled[next]; got.err == nil && got.loc.usable() {
				span.SetAttributes(attribute.String("geo.service", got.loc.Service))
				return fillDefaults(got.loc)
			}
			next++
		}
	}

	span.SetAttributes(attribute.Bool("geo.resolved", false))
	return DefaultLocation()
}

func (r *Resolver) query(ctx context.Context, p Provider, q Query) (Location, error) {
	url := p.URL(q)
	if url == "" {
		return Location{}, errSkipped
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Location{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Location{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Location{}, err
	}

	loc, err := p.Parse(body)
	if err != nil {
		return Location{}, err
	}
	loc.Service = p.Name
	return loc, nil
}

func fillDefaults(l Location) Location {
	if l.Country == "" {
		l.Country = unknown
	}
	if l.Region == "" {
		l.Region = unknown
	}
	if l.Timezone == "" {
		l.Timezone = DefaultTimezone
	}
	return l
}

// ValidateCoordinates rejects out-of-range or zero coordinates and rounds the
// rest to six decimal places.
func ValidateCoordinates(lat, lon float64) (float64, float64, error) {
	if lat == 0 || lon == 0 || math.IsNaN(lat) || math.IsNaN(lon) ||
		lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, ErrInvalidCoordinates
	}
	return round6(lat), round6(lon), nil
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// publicIP reports whether ip is a routable address worth looking up.
func publicIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsGlobalUnicast() && !addr.IsPrivate()
}

// DefaultProviders returns BigDataCloud, Nominatim and IP-API, in priority
// order. IP-API locates the client address rather than the coordinates, so it
// only answers when both coordinate services fail, and only for a public
// client IP.
func DefaultProviders() []Provider {
	return []Provider{
		{
			Name:    "BigDataCloud",
			Timeout: 8 * time.Second,
			URL: func(q Query) string {
				return fmt.Sprintf("https://api.bigdatacloud.net/data/reverse-geocode-client?latitude=%v&longitude=%v&localityLanguage=en", q.Lat, q.Lon)
			},
			Parse: parseBigDataCloud,
		},
		{
			Name:    "Nominatim",
			Timeout: 10 * time.Second,
			URL: func(q Query) string {
				return fmt.Sprintf("https://nominatim.openstreetmap.org/reverse?format=json&lat=%v&lon=%v&addressdetails=1", q.Lat, q.Lon)
			},
			Parse: parseNominatim,
		},
		{
			Name:    "IP-API",
			Timeout: 5 * time.Second,
			URL: func(q Query) string {
				if !publicIP(q.ClientIP) {
					return ""
				}
				return "https://ip-api.com/json/" + q.ClientIP
			},
			Parse: parseIPAPI,
		},
	}
}

func parseBigDataCloud(body []byte) (Location, error) {
	var data struct {
		City                 string `json:"city"`
		Locality             string `json:"locality"`
		PrincipalSubdivision string `json:"principalSubdivision"`
		AdministrativeArea   string `json:"administrativeArea"`
		CountryName          string `json:"countryName"`
		CountryCode          string `json:"countryCode"`
		LocalityInfo         struct {
			Administrative []struct {
				Timezone string `json:"timezone"`
			} `json:"administrative"`
		} `json:"localityInfo"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return Location{}, err
	}

	loc := Location{
		City:    firstNonEmpty(data.City, data.Locality, data.PrincipalSubdivision),
		Country: firstNonEmpty(data.CountryName, data.CountryCode),
		Region:  firstNonEmpty(data.PrincipalSubdivision, data.AdministrativeArea),
	}
	if len(data.LocalityInfo.Administrative) > 0 {
		loc.Timezone = data.LocalityInfo.Administrative[0].Timezone
	}
	return loc, nil
}

func parseNominatim(body []byte) (Location, error) {
	var data struct {
		Address struct {
			City         string `json:"city"`
			Town         string `json:"town"`
			Village      string `json:"village"`
			Municipality string `json:"municipality"`
			Country      string `json:"country"`
			State        string `json:"state"`
			County       string `json:"county"`
		} `json:"address"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return Location{}, err
	}

	a := data.Address
	return Location{
		City:    firstNonEmpty(a.City, a.Town, a.Village, a.Municipality),
		Country: a.Country,
		Region:  firstNonEmpty(a.State, a.County),
	}, nil
}

func parseIPAPI(body []byte) (Location, error) {
	var data struct {
		City       string `json:"city"`
		Country    string `json:"country"`
		RegionName string `json:"regionName"`
		Timezone   string `json:"timezone"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return Location{}, err
	}
	return Location{
		City:     data.City,
		Country:  data.Country,
		Region:   data.RegionName,
		Timezone: data.Timezone,
	}, nil
}
