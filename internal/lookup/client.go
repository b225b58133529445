// Package lookup queries the remote plate registration service.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/winterbear26/kiwiplates-watcher/internal/state"
	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

// ReasonParseError is recorded when the service answered but the payload
// did not carry a boolean availability flag. That shape mismatch is
// deterministic, so it is never retried.
const ReasonParseError = "PARSE_ERROR"

// Config configures the lookup client. Zero fields get sane defaults.
type Config struct {
	BaseURL       string
	VehicleTypeID string
	UserAgent     string

	Timeout time.Duration
	// Retries is the total attempt count for transport faults.
	Retries int
}

// Client fetches tri-state availability for one combination at a time.
// It holds no persisted state; its only side effect is the outbound call.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if strings.TrimSpace(cfg.VehicleTypeID) == "" {
		cfg.VehicleTypeID = "1"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// payload is the subset of the service response we interpret. Available
// stays raw so "present but not a boolean" is distinguishable from a body
// that is not JSON at all.
type payload struct {
	Data struct {
		Available json.RawMessage `json:"Available"`
		Reason    string          `json:"Reason"`
	} `json:"Data"`
}

// Fetch resolves the current availability of one combination.
//
// It never returns an error: transport faults are retried up to the
// configured attempt count and then downgraded to Unknown with an
// "ERROR: ..." reason; a well-formed response with an unexpected shape is
// downgraded to Unknown/PARSE_ERROR without retry.
func (c *Client) Fetch(ctx context.Context, combination string) (state.Availability, string) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		avail, reason, err := c.fetchOnce(ctx, combination)
		if err == nil {
			return avail, reason
		}
		lastErr = err
		c.log.Debug("lookup attempt failed",
			logx.String("combination", combination),
			logx.Int("attempt", attempt),
			logx.Int("max", c.cfg.Retries),
			logx.Err(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return state.Unknown, fmt.Sprintf("ERROR: %v", lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, combination string) (state.Availability, string, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + url.PathEscape(combination) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return state.Unknown, "", err
	}
	q := req.URL.Query()
	q.Set("vehicleTypeId", c.cfg.VehicleTypeID)
	q.Set("leadId", "0")
	q.Set("email", "")
	req.URL.RawQuery = q.Encode()
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return state.Unknown, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return state.Unknown, "", err
	}
	if resp.StatusCode/100 != 2 {
		return state.Unknown, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		// Not even the expected serialization format: transport-class fault.
		return state.Unknown, "", fmt.Errorf("decode body: %w", err)
	}

	var available bool
	if len(p.Data.Available) == 0 || json.Unmarshal(p.Data.Available, &available) != nil {
		return state.Unknown, ReasonParseError, nil
	}
	return state.FromBool(available), p.Data.Reason, nil
}
