// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rootfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/spawn/lib/digest"
)

// Blacklist is the set of top-level directory names whose archive
// members are never extracted. The sandbox mounts or creates these from
// the host side, so archive content there would be shadowed or could
// leak into host-visible state.
var Blacklist = []string{
	"dev",
	"home",
	"mnt",
	"proc",
	"root",
	"srv",
	"sys",
	"tmp",
}

// DefaultHostFiles are copied from the host into every new image.
var DefaultHostFiles = []string{
	"/etc/hosts",
	"/etc/resolv.conf",
}

// Opener opens the archive byte stream for a source. It is called at
// most once per population and never on a cache hit.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Reporter receives the human-readable progress notification emitted
// when a new image starts extracting.
type Reporter interface {
	Info(message string)
}

// Config holds configuration for creating a new Cache.
type Config struct {
	// ImagesRoot is the directory holding extracted images. Created on
	// first population if it does not exist.
	ImagesRoot string

	// Reporter receives progress notifications. Defaults to logging at
	// info level through Logger.
	Reporter Reporter

	// HostFiles are absolute host paths copied into each new image.
	// Nil uses DefaultHostFiles; an empty non-nil slice copies nothing.
	HostFiles []string

	// HTTPClient fetches URL sources. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger for cache operations.
	Logger *slog.Logger
}

// Diagnostic describes an archive member that was skipped.
type Diagnostic struct {
	// Entry is the member name as stored in the archive.
	Entry string

	// Reason is a short description of why the member was skipped.
	Reason string

	// Err is the underlying error, when there is one.
	Err error
}

func (d Diagnostic) String() string {
	if d.Err != nil {
		return fmt.Sprintf("%s: %s: %v", d.Entry, d.Reason, d.Err)
	}
	return d.Entry + ": " + d.Reason
}

// Cache is a content-addressed cache of extracted rootfs images. It is
// safe for concurrent use.
type Cache struct {
	imagesRoot string
	reporter   Reporter
	hostFiles  []string
	httpClient *http.Client
	logger     *slog.Logger

	// populateMu serialises every population on this cache, across all
	// keys. inflight collapses concurrent callers for one key onto a
	// single population.
	populateMu sync.Mutex
	inflight   singleflight.Group

	diagnosticsMu sync.Mutex
	diagnostics   []Diagnostic
}

// New creates a new Cache.
func New(config Config) (*Cache, error) {
	if config.ImagesRoot == "" {
		return nil, fmt.Errorf("images root is required")
	}
	imagesRoot, err := filepath.Abs(config.ImagesRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve images root: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := config.Reporter
	if reporter == nil {
		reporter = LogReporter{Logger: logger}
	}
	hostFiles := config.HostFiles
	if hostFiles == nil {
		hostFiles = DefaultHostFiles
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Cache{
		imagesRoot: imagesRoot,
		reporter:   reporter,
		hostFiles:  hostFiles,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ImagesRoot returns the absolute directory holding extracted images.
func (c *Cache) ImagesRoot() string {
	return c.imagesRoot
}

// Key returns the cache key for a source identifier.
func Key(source string) string {
	return digest.SHA256Hex(source)
}

// ImagePath returns the absolute path of the extracted image for source,
// extracting the archive returned by open if the image is not cached.
func (c *Cache) ImagePath(ctx context.Context, source string, open Opener) (string, error) {
	key := Key(source)
	candidate := filepath.Join(c.imagesRoot, key)

	if exists(candidate) {
		return candidate, nil
	}

	for {
		result, err, _ := c.inflight.Do(key, func() (any, error) {
			c.populateMu.Lock()
			defer c.populateMu.Unlock()

			// A population for this key may have finished while this
			// caller waited for the lock.
			if exists(candidate) {
				return populateResult{}, nil
			}
			if err := c.populate(ctx, source, candidate, open); err != nil {
				return populateResult{cancelled: ctx.Err() != nil}, err
			}
			return populateResult{}, nil
		})
		if err == nil {
			return candidate, nil
		}
		// The populating caller's context is not ours. If it was
		// cancelled and ours is live, populate again.
		if result.(populateResult).cancelled && ctx.Err() == nil {
			continue
		}
		return "", err
	}
}

// populateResult is shared by every caller waiting on one population.
type populateResult struct {
	// cancelled is set when the population failed because the context
	// of the caller running it was done.
	cancelled bool
}

// Diagnostics returns the members skipped by the most recent completed
// population.
func (c *Cache) Diagnostics() []Diagnostic {
	c.diagnosticsMu.Lock()
	defer c.diagnosticsMu.Unlock()
	return append([]Diagnostic(nil), c.diagnostics...)
}

// populate extracts the archive into a staging directory and renames it
// to candidate. On any failure the staging directory is removed, so
// candidate is either absent or complete.
func (c *Cache) populate(ctx context.Context, source, candidate string, open Opener) (err error) {
	if err := os.MkdirAll(c.imagesRoot, 0755); err != nil {
		return fmt.Errorf("creating images root: %w", err)
	}

	c.reporter.Info("Creating new rootfs image for " + source)

	staging, err := os.MkdirTemp(c.imagesRoot, "."+filepath.Base(candidate)+".partial-")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() {
		if err != nil {
			if removeErr := os.RemoveAll(staging); removeErr != nil {
				c.logger.Error("failed to remove partial rootfs image",
					"path", staging, "error", removeErr)
			}
		}
	}()
	// MkdirTemp creates 0700; the image root must be traversable by the
	// sandboxed user.
	if err := os.Chmod(staging, 0755); err != nil {
		return fmt.Errorf("setting staging directory mode: %w", err)
	}

	stream, err := open(ctx)
	if err != nil {
		return fmt.Errorf("opening rootfs archive %s: %w", source, err)
	}
	defer stream.Close()

	diagnostics, err := extract(ctx, stream, staging)
	if err != nil {
		return fmt.Errorf("extracting rootfs archive %s: %w", source, err)
	}

	if err := copyHostFiles(staging, c.hostFiles); err != nil {
		return fmt.Errorf("copying host files into rootfs image: %w", err)
	}

	if err := os.Rename(staging, candidate); err != nil {
		// Another process sharing ImagesRoot may have won the race.
		if exists(candidate) {
			c.logger.Info("rootfs image populated by another process", "image", candidate)
			if removeErr := os.RemoveAll(staging); removeErr != nil {
				c.logger.Error("failed to remove redundant rootfs image", "path", staging, "error", removeErr)
			}
			c.recordDiagnostics(diagnostics)
			return nil
		}
		return fmt.Errorf("moving rootfs image into place: %w", err)
	}

	for _, diagnostic := range diagnostics {
		c.logger.Warn("skipped rootfs archive entry",
			"image", candidate,
			"entry", diagnostic.Entry,
			"reason", diagnostic.Reason,
			"error", diagnostic.Err,
		)
	}
	c.recordDiagnostics(diagnostics)

	c.logger.Info("created rootfs image", "source", source, "image", candidate, "skipped", len(diagnostics))
	return nil
}

func (c *Cache) recordDiagnostics(diagnostics []Diagnostic) {
	c.diagnosticsMu.Lock()
	defer c.diagnosticsMu.Unlock()
	c.diagnostics = diagnostics
}

// copyHostFiles copies each existing host file to the same absolute path
// under root, replacing whatever the archive put there (including a
// symlink, which is replaced rather than followed).
func copyHostFiles(root string, hostFiles []string) error {
	for _, hostPath := range hostFiles {
		info, err := os.Stat(hostPath)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			continue
		}

		destination := filepath.Join(root, hostPath)
		if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
			return err
		}
		if err := os.RemoveAll(destination); err != nil {
			return err
		}
		if err := copyFile(hostPath, destination, info.Mode().Perm()); err != nil {
			return fmt.Errorf("copying %s: %w", hostPath, err)
		}
	}
	return nil
}

func copyFile(source, destination string, mode os.FileMode) error {
	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	output, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(output, input); err != nil {
		output.Close()
		return err
	}
	return output.Close()
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// LogReporter reports progress through a structured logger.
type LogReporter struct {
	Logger *slog.Logger
}

// Info logs message at info level.
func (r LogReporter) Info(message string) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(message)
}
