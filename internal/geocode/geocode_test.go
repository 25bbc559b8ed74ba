package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nopeoplecar/uvdispatch/internal/config"
	"github.com/nopeoplecar/uvdispatch/internal/kv"
	"github.com/nopeoplecar/uvdispatch/internal/logger"
)

func TestGeocodeParsesLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"1","geocodes":[{"location":"116.31604,39.98293"}]}`)
	}))
	defer srv.Close()

	g := New(config.GeocodeConfig{BaseURL: srv.URL, APIKey: "k"}, kv.NewMemCache(), logger.NewNop())
	p, err := g.Geocode(context.Background(), "北京市海淀区中关村大街1号")
	require.NoError(t, err)
	assert.InDelta(t, 116.31604, p.Lon(), 1e-6)
	assert.InDelta(t, 39.98293, p.Lat(), 1e-6)
}

func TestGeocodeCachesResult(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"status":"1","geocodes":[{"location":"1,2"}]}`)
	}))
	defer srv.Close()

	g := New(config.GeocodeConfig{BaseURL: srv.URL}, kv.NewMemCache(), logger.NewNop())
	_, err := g.Geocode(context.Background(), "same address")
	require.NoError(t, err)
	_, err = g.Geocode(context.Background(), "same address")
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestReverseGeocodePrefersFormattedAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"1","regeocode":{"formatted_address":"北京市海淀区中关村大街1号"}}`)
	}))
	defer srv.Close()

	g := New(config.GeocodeConfig{BaseURL: srv.URL}, kv.NewMemCache(), logger.NewNop())
	addr, err := g.ReverseGeocode(context.Background(), pointAt(116.31604, 39.98293))
	require.NoError(t, err)
	assert.Equal(t, "北京市海淀区中关村大街1号", addr)
}

func TestReverseGeocodeFallsBackToAddressComponents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"1","regeocode":{"addressComponent":{"country":"中国","province":"北京市","city":"北京市","district":"海淀区"}}}`)
	}))
	defer srv.Close()

	g := New(config.GeocodeConfig{BaseURL: srv.URL}, kv.NewMemCache(), logger.NewNop())
	addr, err := g.ReverseGeocode(context.Background(), pointAt(1, 2))
	require.NoError(t, err)
	assert.Equal(t, "中国北京市北京市海淀区", addr)
}

func TestReverseGeocodeUnreachableServerFallsBackToUnknown(t *testing.T) {
	g := New(config.GeocodeConfig{BaseURL: "http://127.0.0.1:1"}, kv.NewMemCache(), logger.NewNop())
	addr, err := g.ReverseGeocode(context.Background(), pointAt(3, 4))
	require.NoError(t, err)
	assert.Contains(t, addr, "unknown address")
}

func pointAt(lon, lat float64) orb.Point {
	return orb.Point{lon, lat}
}
