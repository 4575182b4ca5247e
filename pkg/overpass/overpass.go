// Package overpass is the HTTP client for the Overpass API, the Boundary
// Manager's (C8) source of country and maritime relation ids and their
// geometries (spec §4.8(a)).
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	nerrors "github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/errors"
	"github.com/OSM-Notes/OSM-Notes-Ingestion-sub009/pkg/health"
)

// Client queries Overpass for relation id lists and per-relation geometry.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a Client bounded by timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

// Checker returns a raw-dial TCPChecker against the Overpass endpoint, the
// cheap reachability check the Boundary Manager runs before the
// retry-wrapped Import flow (spec §4.8(a)) — a TCP dial is enough to tell
// "network is down" from "Overpass rejected the query", which an HTTP GET
// against a query endpoint can't distinguish cheaply.
func (c *Client) Checker() (health.Checker, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse overpass base url: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	return health.NewTCPChecker(host), nil
}

// relationQuery is the Overpass QL used to enumerate admin boundary ids of
// a given kind (country vs maritime), kept intentionally small — this
// client only ever needs ids and, separately, one relation's geometry.
const relationQuery = `[out:json];relation["boundary"="%s"];out ids;`

// CountryRelationIDs returns the current set of country relation ids.
func (c *Client) CountryRelationIDs(ctx context.Context) ([]int64, error) {
	return c.relationIDs(ctx, "administrative")
}

// MaritimeRelationIDs returns the current set of maritime boundary ids, a
// separate query per spec §4.8(a).
func (c *Client) MaritimeRelationIDs(ctx context.Context) ([]int64, error) {
	return c.relationIDs(ctx, "maritime")
}

func (c *Client) relationIDs(ctx context.Context, boundaryType string) ([]int64, error) {
	query := fmt.Sprintf(relationQuery, boundaryType)
	body, err := c.post(ctx, query)
	if err != nil {
		return nil, nerrors.DownloadIDsFailed(err)
	}
	defer body.Close()

	var parsed struct {
		Elements []struct {
			ID int64 `json:"id"`
		} `json:"elements"`
	}
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, nerrors.DownloadIDsFailed(err)
	}

	ids := make([]int64, 0, len(parsed.Elements))
	for _, e := range parsed.Elements {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// RelationTags is the subset of a relation's OSM tags the Boundary Manager
// needs to keep countries.name_en/name_local current (spec §4.8(a)).
type RelationTags struct {
	NameEn    string
	NameLocal string
}

// RelationDetails fetches name tags for a specific set of relation ids, in
// one request, so an import pass can populate country metadata alongside
// the geometry it downloads separately via FetchGeometry. Ids with no name
// tags at all (e.g. most maritime/disputed-area relations) come back with
// a zero-value RelationTags rather than an error.
func (c *Client) RelationDetails(ctx context.Context, ids []int64) (map[int64]RelationTags, error) {
	if len(ids) == 0 {
		return map[int64]RelationTags{}, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.FormatInt(id, 10)
	}
	query := fmt.Sprintf(`[out:json];relation(id:%s);out tags;`, strings.Join(strs, ","))

	body, err := c.post(ctx, query)
	if err != nil {
		return nil, nerrors.DownloadIDsFailed(err)
	}
	defer body.Close()

	var parsed struct {
		Elements []struct {
			ID   int64             `json:"id"`
			Tags map[string]string `json:"tags"`
		} `json:"elements"`
	}
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, nerrors.DownloadIDsFailed(err)
	}

	out := make(map[int64]RelationTags, len(parsed.Elements))
	for _, e := range parsed.Elements {
		out[e.ID] = RelationTags{
			NameEn:    e.Tags["name:en"],
			NameLocal: e.Tags["name"],
		}
	}
	return out, nil
}

// FetchGeometry downloads the full relation (with geometry) for one
// boundary id, writing the raw Overpass JSON response to w. Callers
// convert it to the database's native geometry type via an external tool
// (spec §4.8(a): "convert each to the database's geometry type via an
// external geo tool").
func (c *Client) FetchGeometry(ctx context.Context, relationID int64, w io.Writer) error {
	query := fmt.Sprintf(`[out:json];relation(%d);out geom;`, relationID)
	body, err := c.post(ctx, query)
	if err != nil {
		return nerrors.BoundaryDownloadFailed(err, relationID)
	}
	defer body.Close()

	if _, err := io.Copy(w, body); err != nil {
		return nerrors.BoundaryDownloadFailed(err, relationID)
	}
	return nil
}

func (c *Client) post(ctx context.Context, query string) (io.ReadCloser, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("overpass status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
