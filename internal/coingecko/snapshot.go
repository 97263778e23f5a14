package coingecko

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/xtxerr/coinlake/internal/objectstore"
)

// SnapshotContentType is the content type snapshots are stored with.
const SnapshotContentType = "application/json"

// Snapshot fetches endpoint and stores the raw response body under
// bucket/key. It returns the number of bytes stored. The bucket must
// already exist.
func (c *Client) Snapshot(ctx context.Context, store objectstore.Store, bucket, key, endpoint string, params url.Values) (int64, error) {
	body, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return 0, err
	}

	if err := store.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), SnapshotContentType); err != nil {
		return 0, fmt.Errorf("store snapshot of %s: %w", endpoint, err)
	}

	c.logger.Info("snapshot stored",
		"endpoint", endpoint,
		"bucket", bucket,
		"key", key,
		"bytes", len(body))
	return int64(len(body)), nil
}
