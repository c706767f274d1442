package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	utls "github.com/refraction-networking/utls"
)

const (
	nominatimBaseURL = "https://nominatim.openstreetmap.org/search"

	// Nominatim usage policy allows roughly one request per second.
	nominatimDelay = 1100 * time.Millisecond

	boundaryUserAgent = "poiscout/0.1 (POI boundary fetch)"
)

// NominatimClient fetches administrative boundary polygons from OSM Nominatim.
type NominatimClient struct {
	http    *http.Client
	baseURL string
	delay   time.Duration
}

func NewNominatimClient() *NominatimClient {
	return &NominatimClient{
		http: &http.Client{
			Transport: chromeTransport(),
			Timeout:   15 * time.Second,
		},
		baseURL: nominatimBaseURL,
		delay:   nominatimDelay,
	}
}

// chromeTransport dials TLS with a Chrome ClientHello; Nominatim's CDN is
// unfriendly to connections with a bare Go fingerprint.
func chromeTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}

			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}

			// Chrome TLS spec with ALPN forced to HTTP/1.1.
			spec, err := utls.UTLSIdToSpec(utls.HelloChrome_Auto)
			if err != nil {
				conn.Close()
				return nil, err
			}
			for i, ext := range spec.Extensions {
				if alpn, ok := ext.(*utls.ALPNExtension); ok {
					alpn.AlpnProtocols = []string{"http/1.1"}
					spec.Extensions[i] = alpn
					break
				}
			}

			tlsConn := utls.UClient(conn, &utls.Config{
				ServerName: host,
			}, utls.HelloCustom)
			if err := tlsConn.ApplyPreset(&spec); err != nil {
				conn.Close()
				return nil, err
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}

			return tlsConn, nil
		},
		MaxIdleConns:    2,
		IdleConnTimeout: 90 * time.Second,
	}
}

type nominatimItem struct {
	Class   string            `json:"class"`
	Type    string            `json:"type"`
	GeoJSON *geojson.Geometry `json:"geojson"`
}

// adminTypes are the boundary kinds preferred when several results carry a
// polygon; anything else is a fallback.
var adminTypes = map[string]bool{
	"administrative": true,
	"city":           true,
	"town":           true,
	"village":        true,
	"municipality":   true,
	"place":          true,
	"state":          true,
	"county":         true,
}

// Fetch returns a Polygon or MultiPolygon geometry for the location, or
// (nil, nil) when Nominatim has no polygon for it. Best-effort: callers treat
// any failure as "no boundary".
func (c *NominatimClient) Fetch(ctx context.Context, location string) (orb.Geometry, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	params := url.Values{
		"q":               {location},
		"format":          {"json"},
		"polygon_geojson": {"1"},
		"limit":           {"10"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building boundary request: %w", err)
	}
	req.Header.Set("User-Agent", boundaryUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("boundary request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("boundary lookup returned status %d", resp.StatusCode)
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding boundary response: %w", err)
	}

	type candidate struct {
		rank int
		geom orb.Geometry
	}
	var candidates []candidate
	for _, item := range items {
		if item.GeoJSON == nil {
			continue
		}
		geom := item.GeoJSON.Geometry()
		switch geom.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		rank := 1
		if adminTypes[item.Type] || item.Class == "boundary" {
			rank = 0
		}
		candidates = append(candidates, candidate{rank: rank, geom: geom})
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].rank < candidates[j].rank
	})
	return candidates[0].geom, nil
}
