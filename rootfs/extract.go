// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rootfs

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var errIsDirectory = errors.New("is a directory")

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// decompress wraps stream in the decompressor matching its magic bytes.
// Rootfs archives are gzip in practice; zstd and lz4 frames are accepted
// for images produced by newer tooling.
func decompress(stream io.Reader) (io.ReadCloser, error) {
	buffered := bufio.NewReader(stream)
	magic, err := buffered.Peek(4)
	if err != nil && !(errors.Is(err, io.EOF) && len(magic) >= len(gzipMagic)) {
		return nil, fmt.Errorf("reading archive header: %w", err)
	}

	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		reader, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return reader, nil
	case bytes.HasPrefix(magic, zstdMagic):
		decoder, err := zstd.NewReader(buffered)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return decoder.IOReadCloser(), nil
	case bytes.HasPrefix(magic, lz4Magic):
		return io.NopCloser(lz4.NewReader(buffered)), nil
	default:
		return nil, fmt.Errorf("unrecognized archive compression (magic %x)", magic)
	}
}

// extract decompresses and unpacks stream under root. It returns the
// members it skipped. Any returned error leaves root partially populated;
// the caller removes it.
func extract(ctx context.Context, stream io.Reader, root string) ([]Diagnostic, error) {
	decompressed, err := decompress(stream)
	if err != nil {
		return nil, err
	}
	defer decompressed.Close()

	// Symlink checks compare against the resolved root so a root under a
	// symlinked directory (macOS /tmp) does not look like an escape.
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("resolving image root: %w", err)
	}

	extractor := &extractor{root: root, resolvedRoot: resolvedRoot}
	reader := tar.NewReader(decompressed)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return extractor.diagnostics, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive entry: %w", err)
		}
		if err := extractor.entry(reader, header); err != nil {
			return nil, fmt.Errorf("extracting %s: %w", header.Name, err)
		}
	}
}

type extractor struct {
	root         string
	resolvedRoot string
	diagnostics  []Diagnostic
}

func (e *extractor) skip(name, reason string, err error) {
	e.diagnostics = append(e.diagnostics, Diagnostic{Entry: name, Reason: reason, Err: err})
}

// entry materialises one archive member. Returned errors are fatal for
// the population; per-member problems are recorded as diagnostics.
func (e *extractor) entry(reader io.Reader, header *tar.Header) error {
	name := memberPath(header.Name)
	if name == "" || name == "." {
		return nil
	}
	if blacklisted(name) {
		return nil
	}
	if !filepath.IsLocal(name) {
		e.skip(header.Name, "path escapes image root", nil)
		return nil
	}

	target := filepath.Join(e.root, name)
	parent := filepath.Dir(target)
	if err := e.checkParent(parent); err != nil {
		e.skip(header.Name, "parent directory resolves outside image root", err)
		return nil
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return err
	}

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0755)

	case tar.TypeSymlink:
		err := ensureSymlink(target, header.Linkname)
		if err != nil && skippableSymlink(err) {
			e.skip(header.Name, "creating symlink", err)
			return nil
		}
		return err

	case tar.TypeLink:
		linkTarget := memberPath(header.Linkname)
		if !filepath.IsLocal(linkTarget) {
			e.skip(header.Name, "hard link target escapes image root", nil)
			return nil
		}
		source := filepath.Join(e.root, linkTarget)
		if err := e.checkLinkSource(source); err != nil {
			e.skip(header.Name, "hard link target resolves outside image root", err)
			return nil
		}
		if err := replaceLink(source, target); err != nil {
			e.skip(header.Name, "creating hard link", err)
		}
		return nil

	case tar.TypeReg, tar.TypeRegA:
		err := writeFile(target, reader, os.FileMode(header.Mode&0o7777))
		if err != nil && unrepresentable(err) {
			e.skip(header.Name, "unrepresentable file name", err)
			return nil
		}
		return err

	default:
		e.skip(header.Name, fmt.Sprintf("unsupported entry type %q", header.Typeflag), nil)
		return nil
	}
}

// checkParent verifies that the nearest existing ancestor of parent
// resolves inside the image root, so a symlink from an earlier member
// cannot redirect later members onto the host filesystem.
func (e *extractor) checkParent(parent string) error {
	existing := parent
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		next := filepath.Dir(existing)
		if next == existing {
			break
		}
		existing = next
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return err
	}
	if resolved != e.resolvedRoot && !strings.HasPrefix(resolved, e.resolvedRoot+string(filepath.Separator)) {
		return fmt.Errorf("%s resolves to %s", existing, resolved)
	}
	return nil
}

// checkLinkSource verifies that a hard link source is reached without
// passing through a symlink that leaves the image root, and is not
// itself a symlink.
func (e *extractor) checkLinkSource(source string) error {
	if err := e.checkParent(filepath.Dir(source)); err != nil {
		return err
	}
	info, err := os.Lstat(source)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%s is a symlink", source)
	}
	return nil
}

// memberPath normalises an archive member name for matching: archives
// built with "tar -C dir ." prefix every member with "./".
func memberPath(name string) string {
	for {
		switch {
		case strings.HasPrefix(name, "./"):
			name = name[2:]
		case strings.HasPrefix(name, "/"):
			name = name[1:]
		default:
			return strings.TrimSuffix(name, "/")
		}
	}
}

// blacklisted reports whether name starts with a blacklisted directory
// name. The match is a plain string prefix, so "devtools/x" is skipped
// along with "dev/null".
func blacklisted(name string) bool {
	for _, prefix := range Blacklist {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ensureSymlink makes target a symlink to linkname, replacing any
// existing non-directory at target.
func ensureSymlink(target, linkname string) error {
	if existing, err := os.Readlink(target); err == nil && existing == linkname {
		return nil
	}
	if err := removeNonDirectory(target); err != nil {
		return err
	}
	return os.Symlink(linkname, target)
}

func replaceLink(source, target string) error {
	if err := removeNonDirectory(target); err != nil {
		return err
	}
	return os.Link(source, target)
}

// writeFile creates target with the contents of reader and then applies
// mode. An existing symlink at target is replaced, never written through.
func writeFile(target string, reader io.Reader, mode os.FileMode) error {
	if err := removeNonDirectory(target); err != nil {
		return err
	}
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	// Chmod rather than passing mode to OpenFile: the umask must not
	// strip bits recorded in the archive.
	return os.Chmod(target, mode)
}

func removeNonDirectory(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: %w", path, errIsDirectory)
	}
	return os.Remove(path)
}

// skippableSymlink reports whether a symlink member that failed with err
// can be skipped. A directory already at the path keeps its contents;
// anything other than a bad name is an I/O failure.
func skippableSymlink(err error) bool {
	return unrepresentable(err) || errors.Is(err, errIsDirectory)
}

// unrepresentable reports whether err means the file name itself cannot
// be used on this filesystem (embedded NUL, over-long components, bad
// encoding), as opposed to an I/O failure.
func unrepresentable(err error) bool {
	return errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENAMETOOLONG) ||
		errors.Is(err, syscall.EILSEQ)
}
