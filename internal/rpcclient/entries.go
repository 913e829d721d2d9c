package rpcclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/quasiyoke/rammingen/internal/wire"
)

// GetNewEntries streams every Entry with recorded_at > after from the
// server, in ascending order, invoking handle for each one as it arrives
// off the wire rather than buffering the whole log in memory. handle
// returning an error stops the stream and the error propagates.
func (c *Client) GetNewEntries(ctx context.Context, after int64, handle func(*wire.Entry) error) error {
	req := func() (*http.Request, error) {
		u := c.baseURL + "/entries?after=" + url.QueryEscape(strconv.FormatInt(after, 10))
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := c.doRetry(ctx, req)
	if err != nil {
		return fmt.Errorf("rpcclient: GetNewEntries: %w", err)
	}
	defer resp.Body.Close()

	r := wire.NewFrameReader(resp.Body)

	for {
		entry, err := wire.DecodeEntry(r)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return &CoreError{Kind: KindProtocol, Err: fmt.Errorf("rpcclient: decoding entry: %w", err)}
		}

		if err := handle(entry); err != nil {
			return err
		}
	}
}

// AddEntry appends a new Entry to the archive log and returns the
// server-assigned recorded_at. Clients never rewrite
// history — this always appends.
func (c *Client) AddEntry(ctx context.Context, e *wire.Entry) (int64, error) {
	var body bytes.Buffer
	if err := wire.EncodeEntry(&body, e); err != nil {
		return 0, fmt.Errorf("rpcclient: encoding entry: %w", err)
	}

	payload := body.Bytes()

	req := func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/entries", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}

		r.Header.Set("Content-Type", "application/octet-stream")

		return r, nil
	}

	resp, err := c.doRetry(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("rpcclient: AddEntry: %w", err)
	}
	defer resp.Body.Close()

	var recordedAt int64
	if _, err := fmt.Fscanf(resp.Body, "%d", &recordedAt); err != nil {
		return 0, &CoreError{Kind: KindProtocol, Err: fmt.Errorf("rpcclient: parsing AddEntry response: %w", err)}
	}

	return recordedAt, nil
}
