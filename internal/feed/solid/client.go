// Package solid talks to a Solid pod: plain HTTP for resource content and the
// WebSocketChannel2023 notification protocol for change events.
package solid

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/feed"
	"github.com/penwyp/podscope/internal/util"
)

const (
	notificationContext = "https://www.w3.org/ns/solid/notification/v1"
	channelType         = "http://www.w3.org/ns/solid/notifications#WebSocketChannel2023"
	channelPath         = "/.notifications/WebSocketChannel2023/"
	maxBlobSize         = 16 << 20
)

// Options configures a Client.
type Options struct {
	// BaseURI is the pod server root, e.g. https://pod.example.org.
	BaseURI string
	// Header is added to every request; authentication lives here.
	Header     http.Header
	HTTPClient *http.Client
}

// Client fetches, writes and watches pod resources.
type Client struct {
	baseURI    string
	header     http.Header
	httpClient *http.Client
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.FetchTimeout}
	}
	return &Client{
		baseURI:    strings.TrimRight(opts.BaseURI, "/"),
		header:     opts.Header.Clone(),
		httpClient: httpClient,
	}
}

// ResolveURL turns a pod-relative resource path into an absolute URL.
func (c *Client) ResolveURL(resource string) string {
	if strings.HasPrefix(resource, "http://") || strings.HasPrefix(resource, "https://") {
		return resource
	}
	return c.baseURI + "/" + strings.TrimLeft(resource, "/")
}

// Fetch returns the current text of resource. A 404 maps to feed.ErrNotFound.
func (c *Client) Fetch(ctx context.Context, resource string) (string, error) {
	url := c.ResolveURL(resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	c.applyHeaders(req)
	req.Header.Set("Accept", "text/plain, text/turtle;q=0.9, */*;q=0.5")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("fetch %s: %w", url, feed.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	util.LogDebug("Fetched resource", util.F("url", url), util.F("bytes", len(body)), util.F("took", time.Since(start).String()))
	return string(body), nil
}

// Write overwrites resource with content as text/plain.
func (c *Client) Write(ctx context.Context, resource, content string) error {
	url := c.ResolveURL(resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("write %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("write %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}

type channelRequest struct {
	Context []string `json:"@context"`
	Type    string   `json:"type"`
	Topic   string   `json:"topic"`
}

type channelResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Topic       string `json:"topic"`
	ReceiveFrom string `json:"receiveFrom"`
}

// Provision asks the pod for a WebSocketChannel2023 on resource and returns the
// receiveFrom endpoint.
func (c *Client) Provision(ctx context.Context, resource string) (string, error) {
	payload, err := sonic.Marshal(channelRequest{
		Context: []string{notificationContext},
		Type:    channelType,
		Topic:   c.ResolveURL(resource),
	})
	if err != nil {
		return "", fmt.Errorf("encode channel request: %w", err)
	}

	url := c.baseURI + channelPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", "application/ld+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("provision channel: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read channel response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("provision channel: unexpected status %d", resp.StatusCode)
	}

	var channel channelResponse
	if err := sonic.Unmarshal(body, &channel); err != nil {
		return "", fmt.Errorf("decode channel response: %w", err)
	}
	if channel.ReceiveFrom == "" {
		return "", fmt.Errorf("provision channel: response has no receiveFrom")
	}
	util.LogDebug("Provisioned notification channel", util.F("topic", channel.Topic), util.F("receive_from", channel.ReceiveFrom))
	return channel.ReceiveFrom, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
}
