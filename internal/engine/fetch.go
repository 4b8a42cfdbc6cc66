package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxAssetSize caps the engine download.
const maxAssetSize = 32 << 20

// HTTPFetcher downloads the engine asset over HTTP.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher using http.DefaultClient.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: http.DefaultClient}
}

// Fetch performs the pinned GET and verifies the response.
func (f *HTTPFetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	if src.URL == "" {
		return nil, errors.New("no engine URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, src.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("empty engine asset")
	}
	if len(body) > maxAssetSize {
		return nil, fmt.Errorf("engine asset exceeds %d bytes", maxAssetSize)
	}

	if want := strings.ToLower(strings.TrimSpace(src.SHA256)); want != "" {
		sum := sha256.Sum256(body)
		if got := hex.EncodeToString(sum[:]); got != want {
			return nil, fmt.Errorf("integrity mismatch: want sha256 %s, got %s", want, got)
		}
	}

	return body, nil
}
