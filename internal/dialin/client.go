// Package dialin fetches the dial-in conference ID and phone numbers of a
// room and turns them into a displayable summary.
package dialin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNotConfigured = errors.New("dial-in endpoint not configured")
	ErrBadStatus     = errors.New("unexpected status")
)

// Number is one dial-in phone number.
type Number struct {
	CountryCode     string `json:"countryCode"`
	TollFree        bool   `json:"tollFree"`
	FormattedNumber string `json:"formattedNumber"`
}

// Numbers is the decoded numbers response. Enabled mirrors the legacy
// numbersEnabled flag; for the list form it is true when the list is
// non-empty.
type Numbers struct {
	Enabled bool     `json:"numbersEnabled"`
	List    []Number `json:"numbers"`
}

// UnmarshalJSON accepts either a list of numbers or the legacy object
// {"numbersEnabled": bool, "numbers": {"<country>": ["<number>", ...]}}.
func (n *Numbers) UnmarshalJSON(data []byte) error {
	var list []Number
	if err := json.Unmarshal(data, &list); err == nil {
		n.List = list
		n.Enabled = len(list) > 0
		return nil
	}

	var legacy struct {
		NumbersEnabled *bool               `json:"numbersEnabled"`
		Numbers        map[string][]string `json:"numbers"`
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("decode numbers: %w", err)
	}
	// Older deployments omit the flag when numbers are on.
	n.Enabled = legacy.NumbersEnabled == nil || *legacy.NumbersEnabled
	n.List = nil

	countries := make([]string, 0, len(legacy.Numbers))
	for c := range legacy.Numbers {
		countries = append(countries, c)
	}
	sort.Strings(countries)
	for _, c := range countries {
		for _, num := range legacy.Numbers[c] {
			n.List = append(n.List, Number{CountryCode: c, FormattedNumber: num})
		}
	}
	return nil
}

// ConferenceID is the conference-code response. Both fields must be set
// for it to be used.
type ConferenceID struct {
	Conference string      `json:"conference"`
	ID         json.Number `json:"id"`
}

// Valid reports whether both conference and id are present.
func (c ConferenceID) Valid() bool {
	return c.Conference != "" && c.ID != "" && c.ID != "0"
}

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	ConfCodeURL string
	NumbersURL  string
	MUCHost     string
	Timeout     time.Duration
}

// Client talks to the dial-in HTTP endpoints.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a client. A zero timeout defaults to 10s.
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "dialin").Logger(),
	}
}

// Config returns the client configuration.
func (c *Client) Config() ClientConfig {
	return c.cfg
}

// ConferenceID fetches the conference code of room.
func (c *Client) ConferenceID(ctx context.Context, room string) (ConferenceID, error) {
	var out ConferenceID
	if c.cfg.ConfCodeURL == "" {
		return out, ErrNotConfigured
	}
	err := c.get(ctx, c.cfg.ConfCodeURL, room, &out)
	return out, err
}

// Numbers fetches the dial-in numbers of room.
func (c *Client) Numbers(ctx context.Context, room string) (Numbers, error) {
	var out Numbers
	if c.cfg.NumbersURL == "" {
		return out, ErrNotConfigured
	}
	err := c.get(ctx, c.cfg.NumbersURL, room, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, base, room string, v any) error {
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	conference := room
	if c.cfg.MUCHost != "" {
		conference = room + "@" + c.cfg.MUCHost
	}
	q.Set("conference", conference)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", u.String()).Msg("Fetching dial-in data")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
