package rpcclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/quasiyoke/rammingen/internal/cryptoengine"
)

// HasContent asks whether the server already stores a chunk keyed by
// hash, the pre-upload check the upload procedure requires
// before streaming a body, and the basis of cross-client dedup and
// crash-atomicity replay.
func (c *Client) HasContent(ctx context.Context, hash cryptoengine.ContentHash) (bool, error) {
	req := func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/content/"+hash.String(), nil)
	}

	resp, err := c.doRetry(ctx, req)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("rpcclient: HasContent: %w", err)
	}
	defer resp.Body.Close()

	return true, nil
}

// isNotFound reports whether err is a KindProtocol CoreError. A 404 ("no
// such content") is classified that way, and HasContent treats it as a
// normal false result rather than an error; any other status classified
// as KindProtocol is reported as absent in the same way.
func isNotFound(err error) bool {
	ce, ok := err.(*CoreError)
	return ok && ce.Kind == KindProtocol
}

// UploadContent streams the already-encrypted body for hash up to the
// server via chunked transfer, failing fast if the server
// rejects it. size is advisory (used for Content-Length when known; pass
// -1 to force chunked transfer with no length header). newBody is called
// once per attempt rather than taking a single io.Reader, since a retried
// request needs a fresh, unconsumed stream (the same reason AddEntry
// buffers its body rather than handing doRetry a single-shot pipe).
func (c *Client) UploadContent(ctx context.Context, hash cryptoengine.ContentHash, newBody func() (io.Reader, error), size int64) error {
	req := func() (*http.Request, error) {
		body, err := newBody()
		if err != nil {
			return nil, fmt.Errorf("rpcclient: reopening upload body: %w", err)
		}

		r, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/content/"+hash.String(), body)
		if err != nil {
			return nil, err
		}

		if size >= 0 {
			r.ContentLength = size
		}

		r.Header.Set("Content-Type", "application/octet-stream")

		return r, nil
	}

	resp, err := c.doRetry(ctx, req)
	if err != nil {
		return fmt.Errorf("rpcclient: UploadContent: %w", err)
	}

	resp.Body.Close()

	return nil
}

// DownloadContent streams the encrypted body for hash from the server.
// The caller must close the returned ReadCloser.
func (c *Client) DownloadContent(ctx context.Context, hash cryptoengine.ContentHash) (io.ReadCloser, error) {
	req := func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/content/"+hash.String(), nil)
	}

	resp, err := c.doRetry(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: DownloadContent: %w", err)
	}

	return resp.Body, nil
}
