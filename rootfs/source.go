// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rootfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/spawn/lib/version"
)

// ImagePathForURL returns the image for an archive fetched with HTTP GET.
// The cache key is the URL's string form.
func (c *Cache) ImagePathForURL(ctx context.Context, location *url.URL) (string, error) {
	source := location.String()
	return c.ImagePath(ctx, source, func(ctx context.Context) (io.ReadCloser, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		request.Header.Set("User-Agent", version.UserAgent())
		response, err := c.httpClient.Do(request)
		if err != nil {
			return nil, err
		}
		if response.StatusCode < 200 || response.StatusCode > 299 {
			response.Body.Close()
			return nil, fmt.Errorf("GET %s: %s", source, response.Status)
		}
		return response.Body, nil
	})
}

// ImagePathForFile returns the image for a local archive. The cache key
// is the path exactly as given.
func (c *Cache) ImagePathForFile(ctx context.Context, archivePath string) (string, error) {
	return c.ImagePath(ctx, archivePath, func(context.Context) (io.ReadCloser, error) {
		return os.Open(archivePath)
	})
}

// ImagePathFor dispatches on the form of source: http:// and https://
// sources are fetched, anything else must be an absolute archive path.
func (c *Cache) ImagePathFor(ctx context.Context, source string) (string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		location, err := url.Parse(source)
		if err != nil {
			return "", fmt.Errorf("parsing rootfs URL: %w", err)
		}
		return c.ImagePathForURL(ctx, location)
	}
	if !filepath.IsAbs(source) {
		return "", fmt.Errorf("rootfs archive path %q is not absolute", source)
	}
	return c.ImagePathForFile(ctx, source)
}
