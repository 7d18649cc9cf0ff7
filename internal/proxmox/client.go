// Package proxmox is the thin REST adapter for the Proxmox VE API. It owns
// authentication and transport and classifies failures as transient or
// permanent for the fetcher; it does no normalization of its own.
package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"pvescope/internal/config"
	"pvescope/internal/fetch"
)

// Client talks to one management endpoint. It authenticates lazily: API
// tokens go straight into the Authorization header, password credentials
// are exchanged for a ticket/CSRF pair on first use.
type Client struct {
	host    string
	baseURL string
	creds   config.ServerConfig
	httpc   *http.Client
	logger  *slog.Logger

	mu     sync.Mutex
	ticket string
	csrf   string
}

func NewClient(creds config.ServerConfig, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := &http.Transport{}
	if creds.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		host:    creds.Host,
		baseURL: fmt.Sprintf("https://%s:%d/api2/json", creds.Host, creds.APIPort()),
		creds:   creds,
		httpc:   &http.Client{Timeout: timeout, Transport: transport},
		logger:  logger,
	}
}

func (c *Client) Host() string { return c.host }

func (c *Client) ListNodes(ctx context.Context) ([]RawNode, error) {
	var out []RawNode
	err := c.get(ctx, "/nodes", &out)
	return out, err
}

func (c *Client) NodeStatus(ctx context.Context, node string) (RawNodeStatus, error) {
	var out RawNodeStatus
	err := c.get(ctx, "/nodes/"+url.PathEscape(node)+"/status", &out)
	return out, err
}

func (c *Client) ListVMs(ctx context.Context, node string) ([]RawVM, error) {
	var out []RawVM
	err := c.get(ctx, "/nodes/"+url.PathEscape(node)+"/qemu", &out)
	return out, err
}

func (c *Client) VMConfig(ctx context.Context, node string, vmid uint64) (RawVMConfig, error) {
	var out RawVMConfig
	err := c.get(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/config", url.PathEscape(node), vmid), &out)
	return out, err
}

func (c *Client) VMStatus(ctx context.Context, node string, vmid uint64) (RawVMStatus, error) {
	var out RawVMStatus
	err := c.get(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/status/current", url.PathEscape(node), vmid), &out)
	return out, err
}

func (c *Client) ListStorage(ctx context.Context, node string) ([]RawStorage, error) {
	var out []RawStorage
	err := c.get(ctx, "/nodes/"+url.PathEscape(node)+"/storage", &out)
	return out, err
}

func (c *Client) StorageStatus(ctx context.Context, node, storage string) (RawStorageStatus, error) {
	var out RawStorageStatus
	err := c.get(ctx, fmt.Sprintf("/nodes/%s/storage/%s/status", url.PathEscape(node), url.PathEscape(storage)), &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fetch.Permanent(fmt.Errorf("build request %s: %w", path, err))
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fetch.Transient(classifyDialErr(path, err))
	}
	defer resp.Body.Close()

	if err := statusErr(path, resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fetch.Transient(fmt.Errorf("decode %s: %w", path, err))
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fetch.Permanent(fmt.Errorf("unmarshal %s: %w", path, err))
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.creds.TokenID != "" {
		req.Header.Set("Authorization",
			fmt.Sprintf("PVEAPIToken=%s!%s=%s", c.creds.Username, c.creds.TokenID, c.creds.TokenSecret))
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticket == "" {
		if err := c.loginLocked(ctx); err != nil {
			return err
		}
	}
	req.AddCookie(&http.Cookie{Name: "PVEAuthCookie", Value: c.ticket})
	req.Header.Set("CSRFPreventionToken", c.csrf)
	return nil
}

func (c *Client) loginLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/access/ticket", strings.NewReader(form.Encode()))
	if err != nil {
		return fetch.Permanent(fmt.Errorf("build login request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fetch.Transient(classifyDialErr("/access/ticket", err))
	}
	defer resp.Body.Close()

	if err := statusErr("/access/ticket", resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return err
	}

	var envelope struct {
		Data struct {
			Ticket string `json:"ticket"`
			CSRF   string `json:"CSRFPreventionToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fetch.Transient(fmt.Errorf("decode login response: %w", err))
	}
	if envelope.Data.Ticket == "" {
		return fetch.Permanent(fmt.Errorf("login to %s returned no ticket", c.host))
	}
	c.ticket = envelope.Data.Ticket
	c.csrf = envelope.Data.CSRF
	c.logger.Debug("authenticated", "server", c.host)
	return nil
}

func classifyDialErr(path string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: timeout: %w", path, err)
	}
	return fmt.Errorf("%s: %w", path, err)
}

func statusErr(path string, code int) error {
	switch {
	case code < 400:
		return nil
	case code >= 500:
		return fetch.Transient(fmt.Errorf("%s: server error (HTTP %d)", path, code))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fetch.Permanent(fmt.Errorf("%s: authentication rejected (HTTP %d)", path, code))
	case code == http.StatusNotFound:
		return fetch.Permanent(fmt.Errorf("%s: not found (HTTP %d)", path, code))
	default:
		return fetch.Permanent(fmt.Errorf("%s: request rejected (HTTP %d)", path, code))
	}
}
