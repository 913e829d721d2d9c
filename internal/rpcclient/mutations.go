package rpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Stats reports the effect of a mutating RPC (move/remove/reset) — how
// many Entries the server appended in response to the call. The core
// surfaces this to the progress collaborator.
type Stats struct {
	EntriesAppended int64 `json:"entries_appended"`
}

// MovePath renames oldEncrypted to newEncrypted in the archive. The server appends new Entries; history is
// never rewritten.
func (c *Client) MovePath(ctx context.Context, oldEncrypted, newEncrypted string) (Stats, error) {
	return c.postMutation(ctx, "/move", url.Values{
		"old": {oldEncrypted},
		"new": {newEncrypted},
	})
}

// RemovePath tombstones encrypted in the archive.
func (c *Client) RemovePath(ctx context.Context, encrypted string) (Stats, error) {
	return c.postMutation(ctx, "/remove", url.Values{"path": {encrypted}})
}

// ResetVersion appends Entries restoring encrypted's state as of
// recordedAt, without rewriting history.
func (c *Client) ResetVersion(ctx context.Context, encrypted string, recordedAt int64) (Stats, error) {
	return c.postMutation(ctx, "/reset", url.Values{
		"path":        {encrypted},
		"recorded_at": {strconv.FormatInt(recordedAt, 10)},
	})
}

func (c *Client) postMutation(ctx context.Context, path string, form url.Values) (Stats, error) {
	req := func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}

		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		return r, nil
	}

	resp, err := c.doRetry(ctx, req)
	if err != nil {
		return Stats{}, fmt.Errorf("rpcclient: %s: %w", path, err)
	}
	defer resp.Body.Close()

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return Stats{}, &CoreError{Kind: KindProtocol, Err: fmt.Errorf("rpcclient: decoding %s response: %w", path, err)}
	}

	return stats, nil
}
