package provider

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/models"
)

const (
	DefaultTimeout = time.Second * 30

	// DefaultMaxBodySize bounds the size of a fetched resource.
	DefaultMaxBodySize = 64 << 20

	cancelPollInterval = time.Millisecond * 10
)

// Client fetches provider resources over HTTP.
type Client struct {
	HTTPClient  *http.Client
	MaxBodySize int64
	UserAgent   string
}

// NewClient returns a client sending requests through the given transport.
func NewClient(transport http.RoundTripper, timeout time.Duration) *Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		HTTPClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		MaxBodySize: DefaultMaxBodySize,
	}
}

// Get downloads the resource at the given URL.
func (c *Client) Get(ctx context.Context, protocol, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.New("creating request failed").
			WithTag("url", url).
			Wrap(err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.New("request failed").
			WithTag("url", url).
			Wrap(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.New("unexpected response status").
			WithTag("url", url).
			WithTag("status", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, c.MaxBodySize+1))
	if err != nil {
		return nil, errors.New("reading response body failed").
			WithTag("url", url).
			Wrap(err)
	}
	if int64(len(body)) > c.MaxBodySize {
		return nil, errors.New("response body too large").
			WithTag("url", url).
			WithTag("max_size", c.MaxBodySize)
	}

	instrumentFetchedBytes(protocol, len(body))
	return body, nil
}

// Fetch downloads the resource of a command. The request is aborted as soon
// as the command is cancelled.
func (c *Client) Fetch(ctx context.Context, cmd *models.Command) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(cancelPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				if cmd.Cancelled() {
					cancel()
					return
				}
			}
		}
	}()

	body, err := c.Get(ctx, cmd.Protocol, cmd.URL)
	if cmd.Cancelled() {
		return nil, models.ErrCancelled(cmd)
	}
	return body, err
}
