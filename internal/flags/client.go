// Package flags mirrors the REST Countries flag set onto disk as e-ink
// sized BMPs with JSON metadata sidecars.
package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// DefaultBaseURL is the public REST Countries endpoint.
const DefaultBaseURL = "https://restcountries.com"

// queryFields is the field filter sent with /v3.1/all; the endpoint
// rejects unfiltered requests.
const queryFields = "name,flags,population,area,capital,region,subregion,languages,currencies,timezones,borders"

// Country is the subset of a REST Countries v3.1 record this tool uses.
type Country struct {
	Name struct {
		Common   string `json:"common"`
		Official string `json:"official"`
	} `json:"name"`
	Flags struct {
		SVG string `json:"svg"`
		PNG string `json:"png"`
	} `json:"flags"`
	Population int64             `json:"population"`
	Area       float64           `json:"area"`
	Capital    []string          `json:"capital"`
	Region     string            `json:"region"`
	Subregion  string            `json:"subregion"`
	Languages  map[string]string `json:"languages"`
	Currencies map[string]struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	} `json:"currencies"`
	Timezones []string `json:"timezones"`
	Borders   []string `json:"borders"`
}

// ID returns the filesystem identifier for the country: the lowercased
// common name with spaces replaced by underscores.
func (c *Country) ID() string {
	return strings.ToLower(strings.ReplaceAll(c.Name.Common, " ", "_"))
}

// Metadata is the flattened per-country record written next to the flag.
type Metadata struct {
	Country      string  `json:"country"`
	OfficialName string  `json:"official_name"`
	Population   int64   `json:"population"`
	Area         float64 `json:"area"`
	Capital      string  `json:"capital"`
	Region       string  `json:"region"`
	Subregion    string  `json:"subregion"`
	Languages    string  `json:"languages"`
	Currencies   string  `json:"currencies"`
	Timezones    string  `json:"timezones"`
	Borders      string  `json:"borders"`
}

// Meta flattens the country record. Map-backed fields are sorted so the
// output is stable across runs.
func (c *Country) Meta() Metadata {
	capital := "Unknown"
	if len(c.Capital) > 0 {
		capital = c.Capital[0]
	}

	langKeys := make([]string, 0, len(c.Languages))
	for k := range c.Languages {
		langKeys = append(langKeys, k)
	}
	sort.Strings(langKeys)
	langs := make([]string, 0, len(langKeys))
	for _, k := range langKeys {
		langs = append(langs, c.Languages[k])
	}

	curKeys := make([]string, 0, len(c.Currencies))
	for k := range c.Currencies {
		curKeys = append(curKeys, k)
	}
	sort.Strings(curKeys)
	curs := make([]string, 0, len(curKeys))
	for _, k := range curKeys {
		curs = append(curs, fmt.Sprintf("%s (%s)", c.Currencies[k].Name, k))
	}

	return Metadata{
		Country:      c.Name.Common,
		OfficialName: c.Name.Official,
		Population:   c.Population,
		Area:         c.Area,
		Capital:      capital,
		Region:       c.Region,
		Subregion:    c.Subregion,
		Languages:    strings.Join(langs, ", "),
		Currencies:   strings.Join(curs, ", "),
		Timezones:    strings.Join(c.Timezones, ", "),
		Borders:      strings.Join(c.Borders, ", "),
	}
}

// Client talks to the REST Countries API and fetches flag images.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client. baseURL defaults to DefaultBaseURL when
// empty; tests point it at an httptest server.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// All fetches every country record.
func (c *Client) All(ctx context.Context) ([]Country, error) {
	url := c.baseURL + "/v3.1/all?fields=" + queryFields

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("flags: fetching country list: %w", err)
	}

	var countries []Country
	if err := json.Unmarshal(body, &countries); err != nil {
		return nil, fmt.Errorf("flags: decoding country list: %w", err)
	}
	return countries, nil
}

// FetchFlag downloads the raw flag image bytes from the given URL.
func (c *Client) FetchFlag(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("flags: country has no flag URL")
	}
	return c.get(ctx, url)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	return io.ReadAll(resp.Body)
}
