package objectstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTP is a Store backed by a CDN or gateway fronting the bucket. Existence
// checks are HEAD requests against the delivery URL, which also exercises the
// path players will actually fetch.
type HTTP struct {
	client  *http.Client
	bucket  string
	cdnBase string
}

func NewHTTP(bucket, cdnBase string) *HTTP {
	return &HTTP{
		client:  &http.Client{Timeout: 10 * time.Second},
		bucket:  bucket,
		cdnBase: strings.TrimRight(cdnBase, "/"),
	}
}

func (h *HTTP) Head(ctx context.Context, key string) (ObjectInfo, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.URL(key), nil)
	if err != nil {
		return ObjectInfo{}, false, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return ObjectInfo{}, false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return ObjectInfo{Key: key, Size: resp.ContentLength}, true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		// Some gateways mask missing keys as 403.
		return ObjectInfo{}, false, nil
	default:
		return ObjectInfo{}, false, fmt.Errorf("head %s: unexpected status %d", key, resp.StatusCode)
	}
}

func (h *HTTP) URL(key string) string {
	return h.cdnBase + "/" + key
}

func (h *HTTP) SourceURI(key string) string {
	return "s3://" + h.bucket + "/" + key
}
