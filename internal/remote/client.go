// Package remote talks to the Santonian archive's JSON backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/burnoutdv/santonian-archive/internal/config"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

const (
	// UserAgent identifies the archiver to the remote
	UserAgent = "santonian-archive/1.0 (https://github.com/burnoutdv/santonian-archive)"

	// NoSuchItem is the literal body the remote sends for an unknown log
	NoSuchItem = "NO ITEM WITH THAT NAME"

	// LogExtension marks text entries in a folder listing
	LogExtension = "LOG"

	maxBodyBytes = 32 << 20
)

// FetchError describes one failed request.
// It unwraps to util.ErrTransport, util.ErrMalformedResponse or util.ErrNotFound.
type FetchError struct {
	Kind       error
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.URL, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", util.Truncate(e.Body, 120))
	}
	return b.String()
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Client performs requests against the remote API
type Client struct {
	httpClient *http.Client
	cfg        config.RemoteConfig
	userAgent  string

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a client for the configured endpoint
func NewClient(cfg config.RemoteConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		userAgent:  UserAgent,
	}
}

// Endpoint returns the base URL requests are sent to
func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// statusMessage is the envelope the remote uses for lookups and errors
type statusMessage struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// ListFolders returns the names of all remote folders
func (c *Client) ListFolders(ctx context.Context) ([]string, error) {
	u := c.cfg.URL(c.cfg.Paths.Folders, "")
	raw, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		return names, nil
	}

	var msg statusMessage
	if err := json.Unmarshal(raw, &msg); err == nil && msg.Type != "" {
		return nil, &FetchError{Kind: util.ErrMalformedResponse, URL: u, Body: messageText(msg.Message)}
	}
	return nil, &FetchError{Kind: util.ErrMalformedResponse, URL: u, Body: string(raw), Err: errors.New("expected a list of folder names")}
}

// FolderID translates a folder name into the remote's numeric id
func (c *Client) FolderID(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("folder name cannot be empty")
	}
	u := c.cfg.URL(c.cfg.Paths.FolderDetails, url.PathEscape(name))
	raw, err := c.get(ctx, u)
	if err != nil {
		return 0, err
	}

	var msg statusMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		return 0, &FetchError{Kind: util.ErrMalformedResponse, URL: u, Body: string(raw), Err: err}
	}
	if msg.Type != "OK" {
		return 0, &FetchError{Kind: util.ErrNotFound, URL: u, Body: messageText(msg.Message)}
	}

	dec := json.NewDecoder(bytes.NewReader(msg.Message))
	dec.UseNumber()
	var ids []any
	if err := dec.Decode(&ids); err != nil || len(ids) == 0 {
		return 0, &FetchError{Kind: util.ErrMalformedResponse, URL: u, Body: string(msg.Message), Err: err}
	}

	id, err := parseID(ids[0])
	if err != nil {
		return 0, &FetchError{Kind: util.ErrMalformedResponse, URL: u, Body: string(msg.Message), Err: err}
	}
	util.DebugLog("Remote: folder %s has id %d", name, id)
	return id, nil
}

// FolderContent lists the entry names (NAME.EXT) of one folder
func (c *Client) FolderContent(ctx context.Context, folderID int64) ([]string, error) {
	u := c.cfg.URL(c.cfg.Paths.FolderContent, strconv.FormatInt(folderID, 10))
	raw, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var entries []string
	if err := json.Unmarshal(raw, &entries); err == nil {
		return entries, nil
	}

	var msg statusMessage
	if err := json.Unmarshal(raw, &msg); err == nil && msg.Type != "" {
		return nil, &FetchError{Kind: util.ErrNotFound, URL: u, Body: messageText(msg.Message)}
	}
	return nil, &FetchError{Kind: util.ErrMalformedResponse, URL: u, Body: string(raw), Err: errors.New("expected a list of entries")}
}

// ReadLog fetches the text of a log by its base name (without extension)
func (c *Client) ReadLog(ctx context.Context, base string) (string, error) {
	u := c.cfg.URL(c.cfg.Paths.ReadLog, url.PathEscape(base))
	raw, err := c.get(ctx, u)
	if err != nil {
		return "", err
	}

	var body string
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", &FetchError{Kind: util.ErrMalformedResponse, URL: u, Body: string(raw), Err: err}
	}
	if body == NoSuchItem {
		return "", &FetchError{Kind: util.ErrNotFound, URL: u, Body: body}
	}
	return html.UnescapeString(body), nil
}

// SplitEntryName splits "CALLX.LOG" into "CALLX" and "LOG"
func SplitEntryName(entry string) (base, ext string) {
	i := strings.LastIndexByte(entry, '.')
	if i < 0 {
		return entry, ""
	}
	return entry[:i], entry[i+1:]
}

// IsLogEntry reports whether a folder entry is a text log
func IsLogEntry(entry string) bool {
	_, ext := SplitEntryName(entry)
	return strings.EqualFold(ext, LogExtension)
}

func (c *Client) get(ctx context.Context, u string) (json.RawMessage, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	util.DebugLog("Remote API: GET %s", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: util.ErrTransport, URL: u, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: util.ErrTransport, URL: u, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Kind: util.ErrTransport, URL: u, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if !json.Valid(body) {
		return nil, &FetchError{Kind: util.ErrMalformedResponse, URL: u, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.RawMessage(body), nil
}

// pace keeps at least RequestInterval between two requests
func (c *Client) pace(ctx context.Context) error {
	if c.cfg.RequestInterval <= 0 {
		return nil
	}

	c.mu.Lock()
	wait := c.cfg.RequestInterval - time.Since(c.lastRequest)
	c.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	c.mu.Lock()
	c.lastRequest = time.Now()
	c.mu.Unlock()
	return nil
}

func messageText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func parseID(v any) (int64, error) {
	switch id := v.(type) {
	case json.Number:
		return id.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	}
	return 0, fmt.Errorf("unexpected id %v", v)
}
