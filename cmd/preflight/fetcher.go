// cmd/preflight/fetcher.go
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/preflight/pkg/preflight"
)

// withURLFetcher installs the daemon's stock preload hook: components
// whose metadata carries a "url" are warmed with a GET; anything else
// is a no-op. Applications embedding the library bring their own
// fetcher.
func withURLFetcher() preflight.Option {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	return preflight.WithFetcher(preflight.FetcherFunc(func(ctx context.Context, desc *preflight.ComponentDescriptor) error {
		raw, ok := desc.Metadata["url"]
		if !ok {
			return nil
		}
		url, ok := raw.(string)
		if !ok || url == "" {
			return nil
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating preload request: %w", err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("preload fetch: %w", err)
		}
		defer resp.Body.Close()
		// Warming the HTTP cache is the point; the bytes are discarded.
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("preload fetch: status %d", resp.StatusCode)
		}
		return nil
	}))
}
