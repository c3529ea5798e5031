// Package revalidate calls the site's cache-invalidation endpoint after a
// successful load.
package revalidate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ethnograph/internal/metrics"
)

// Path is appended to the configured base URL.
const Path = "/api/admin/revalidate"

// DefaultTags are sent when Config.Tags is empty.
var DefaultTags = []string{"regions", "countries", "ethnic-groups", "languages"}

// ErrDisabled is returned by Call when no base URL or secret is configured.
var ErrDisabled = errors.New("revalidate: not configured")

type Config struct {
	BaseURL string
	Secret  string
	Tags    []string
	Timeout time.Duration
}

// Enabled reports whether both the base URL and the secret are set.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.BaseURL) != "" && strings.TrimSpace(c.Secret) != ""
}

type Client struct {
	cfg     Config
	http    *http.Client
	log     *zap.SugaredLogger
	metrics metrics.Backend
}

func New(cfg Config, log *zap.SugaredLogger, m metrics.Backend) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if len(cfg.Tags) == 0 {
		cfg.Tags = DefaultTags
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.With("component", "revalidate"),
		metrics: m,
	}
}

type request struct {
	Tags []string `json:"tags"`
}

// Call posts the configured tags with the bearer secret. Any non-2xx status
// is an error; callers treat it as a warning only.
func (c *Client) Call(ctx context.Context) error {
	if !c.cfg.Enabled() {
		c.count("skipped")
		return ErrDisabled
	}
	err := c.post(ctx)
	if err != nil {
		c.count("error")
		c.log.Warnw("revalidation failed", "url", c.cfg.BaseURL+Path, "error", err)
		return err
	}
	c.count("ok")
	c.log.Infow("revalidation sent", "tags", c.cfg.Tags)
	return nil
}

func (c *Client) post(ctx context.Context) error {
	body, err := json.Marshal(request{Tags: c.cfg.Tags})
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+Path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) count(status string) {
	c.metrics.IncCounter(metrics.RevalidateTotal, 1, metrics.Labels{"status": status})
}
