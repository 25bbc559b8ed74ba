// Package geocode wraps the AMap-style HTTP geocoding API used by the
// original Geocoder singleton (api/geocode/geoApi.cpp): forward geocoding
// of an address to a point, and reverse geocoding of a point to an
// address. Both directions are cached in KVCache indefinitely and
// deduplicated across concurrent callers of the same key with singleflight,
// since Dispatch's page-sweep and Producers' location generator can both
// ask for the same address in the same tick.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"

	"github.com/nopeoplecar/uvdispatch/internal/config"
	"github.com/nopeoplecar/uvdispatch/internal/kv"
	"github.com/nopeoplecar/uvdispatch/internal/logger"
)

const (
	geocodePath        = "/v3/geocode/geo"
	reverseGeocodePath = "/v3/geocode/regeo"

	forwardCacheKeyPrefix = "geo:"
	reverseCacheKeyPrefix = "point_address:"

	unknownAddressPrefix = "unknown address"
)

// Geocoder resolves addresses to points and points to addresses against an
// AMap-compatible REST API, per geoApi.cpp.
type Geocoder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      kv.Cache
	log        logger.InterfaceLogger

	sf singleflight.Group
}

// New builds a Geocoder from cfg. A nil/empty BaseURL still works: requests
// simply fail and callers fall back to the zero point / unknown address.
func New(cfg config.GeocodeConfig, cache kv.Cache, log logger.InterfaceLogger) *Geocoder {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Geocoder{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		cache:      cache,
		log:        log,
	}
}

type geoResponse struct {
	Status   string `json:"status"`
	Geocodes []struct {
		Location string `json:"location"`
	} `json:"geocodes"`
}

// Geocode resolves address to a point, caching the result under
// "geo:{address}" indefinitely. A cache hit skips the HTTP
// call entirely.
func (g *Geocoder) Geocode(ctx context.Context, address string) (orb.Point, error) {
	key := forwardCacheKeyPrefix + address
	if cached, ok, err := g.cache.Get(ctx, key); err == nil && ok {
		return parseWKTPoint(cached)
	}

	v, err, _ := g.sf.Do(key, func() (interface{}, error) {
		p, ferr := g.fetchGeocode(ctx, address)
		if ferr != nil {
			return orb.Point{}, ferr
		}
		if serr := g.cache.Set(ctx, key, formatWKTPoint(p), 0); serr != nil {
			g.log.Warnf("geocode: cache set failed for %q: %v", address, serr)
		}
		return p, nil
	})
	if err != nil {
		return orb.Point{}, err
	}
	return v.(orb.Point), nil
}

func (g *Geocoder) fetchGeocode(ctx context.Context, address string) (orb.Point, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.apiKey)

	body, err := g.get(ctx, geocodePath, q)
	if err != nil {
		return orb.Point{}, err
	}

	var resp geoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return orb.Point{}, fmt.Errorf("geocode: decode response: %w", err)
	}
	if resp.Status != "1" || len(resp.Geocodes) == 0 {
		return orb.Point{}, nil
	}
	lon, lat, ok := splitLonLat(resp.Geocodes[0].Location, ",")
	if !ok {
		return orb.Point{}, nil
	}
	return orb.Point{lon, lat}, nil
}

type regeoResponse struct {
	Status    string `json:"status"`
	Info      string `json:"info"`
	Regeocode struct {
		FormattedAddress json.RawMessage `json:"formatted_address"`
		AddressComponent  struct {
			Country   string `json:"country"`
			Province  string `json:"province"`
			City      string `json:"city"`
			District  string `json:"district"`
			Township  string `json:"township"`
		} `json:"addressComponent"`
	} `json:"regeocode"`
}

// ReverseGeocode resolves p to a human-readable address, caching under
// "point_address:{wktPoint}" indefinitely. Falls back through
// the same tiers as the original: formatted_address, then joined address
// components, else an "unknown address" placeholder carrying the
// coordinates so a failed lookup is still traceable.
func (g *Geocoder) ReverseGeocode(ctx context.Context, p orb.Point) (string, error) {
	wkt := formatWKTPoint(p)
	key := reverseCacheKeyPrefix + wkt
	if cached, ok, err := g.cache.Get(ctx, key); err == nil && ok {
		return cached, nil
	}

	v, err, _ := g.sf.Do(key, func() (interface{}, error) {
		addr, ferr := g.fetchReverseGeocode(ctx, p)
		if ferr != nil {
			addr = fmt.Sprintf("%s (%g,%g)", unknownAddressPrefix, p.Lon(), p.Lat())
		}
		if serr := g.cache.Set(ctx, key, addr, 0); serr != nil {
			g.log.Warnf("geocode: cache set failed for %q: %v", wkt, serr)
		}
		return addr, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *Geocoder) fetchReverseGeocode(ctx context.Context, p orb.Point) (string, error) {
	q := url.Values{}
	q.Set("location", fmt.Sprintf("%g,%g", p.Lon(), p.Lat()))
	q.Set("key", g.apiKey)
	q.Set("extensions", "base")
	q.Set("output", "JSON")

	body, err := g.get(ctx, reverseGeocodePath, q)
	if err != nil {
		return "", err
	}

	var resp regeoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("reverse geocode: decode response: %w", err)
	}
	if resp.Status != "1" {
		return "", fmt.Errorf("reverse geocode: api error: %s", resp.Info)
	}

	if addr := firstFormattedAddress(resp.Regeocode.FormattedAddress); addr != "" {
		return addr, nil
	}

	c := resp.Regeocode.AddressComponent
	var parts []string
	for _, part := range []string{c.Country, c.Province, c.City, c.District, c.Township} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ""), nil
	}
	return "", fmt.Errorf("reverse geocode: no address in response")
}

func firstFormattedAddress(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return arr[0]
	}
	return ""
}

func (g *Geocoder) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := g.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("geocode: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

// formatWKTPoint renders p as "POINT(lon lat)", the wire format the
// original Geocoder used for forward-geocode results.
func formatWKTPoint(p orb.Point) string {
	return fmt.Sprintf("POINT(%s %s)", strconv.FormatFloat(p.Lon(), 'g', -1, 64), strconv.FormatFloat(p.Lat(), 'g', -1, 64))
}

func parseWKTPoint(s string) (orb.Point, error) {
	lon, lat, ok := splitLonLat(s, " ")
	if !ok {
		return orb.Point{}, fmt.Errorf("geocode: malformed cached point %q", s)
	}
	return orb.Point{lon, lat}, nil
}

func splitLonLat(s, sep string) (lon, lat float64, ok bool) {
	s = strings.TrimPrefix(s, "POINT(")
	s = strings.TrimSuffix(s, ")")
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lonF, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	latF, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lonF, latF, true
}
