// Package httpdev is a read-only file device for http:// and https://
// paths, fetched with a retrying HTTP client.
package httpdev

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"tools.zach/dev/safesave/internal/fileerr"
)

// Defaults applied to zero Options fields.
const (
	DefaultRetryMax = 2
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 64 << 20
)

// Options configures a Device.
type Options struct {
	// RetryMax is the number of retries after the first attempt.
	RetryMax int
	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxBytes is the largest body accepted.
	MaxBytes int64
}

// Device fetches whole documents over HTTP.
type Device struct {
	client   *retryablehttp.Client
	maxBytes int64
}

// New creates a Device.
func New(opts Options) *Device {
	if opts.RetryMax <= 0 {
		opts.RetryMax = DefaultRetryMax
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.HTTPClient.Timeout = opts.Timeout
	client.Logger = nil // suppress retryablehttp's default logging
	// Hand back the last response so its status can be reported.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Device{client: client, maxBytes: opts.MaxBytes}
}

// FileContents GETs url and returns the body. A 404 is reported as a
// missing file; any other non-2xx status as an open failure.
func (d *Device) FileContents(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fileerr.ReadOpen(url, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fileerr.ReadOpen(url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fileerr.ReadOpen(url, fs.ErrNotExist)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fileerr.ReadOpen(url, fmt.Errorf("HTTP %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fileerr.ReadIO(url, err)
	}
	if int64(len(body)) > d.maxBytes {
		return nil, fileerr.ReadIO(url, fmt.Errorf("body exceeds %d bytes", d.maxBytes))
	}
	slog.Debug("http device fetched", "url", url, "bytes", len(body))
	return body, nil
}
