// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Entry describes one tar archive member.
type Entry struct {
	// Name is the member path as stored in the archive.
	Name string

	// Type is the tar type flag. Zero means a regular file.
	Type byte

	// Mode is the permission bits. Zero uses 0644 for files and 0755
	// for directories.
	Mode int64

	// Body is the content of a regular file.
	Body string

	// Linkname is the target of a symlink or hard link.
	Linkname string
}

// Tar returns an uncompressed tar stream containing entries in order.
func Tar(t testing.TB, entries []Entry) []byte {
	t.Helper()

	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	for _, entry := range entries {
		header := &tar.Header{
			Name:     entry.Name,
			Typeflag: entry.Type,
			Mode:     entry.Mode,
			Linkname: entry.Linkname,
		}
		switch entry.Type {
		case 0, tar.TypeReg:
			header.Typeflag = tar.TypeReg
			header.Size = int64(len(entry.Body))
			if header.Mode == 0 {
				header.Mode = 0644
			}
		case tar.TypeDir:
			if header.Mode == 0 {
				header.Mode = 0755
			}
		case tar.TypeSymlink, tar.TypeLink:
			if header.Mode == 0 {
				header.Mode = 0777
			}
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatalf("writing tar header for %s: %v", entry.Name, err)
		}
		if header.Typeflag == tar.TypeReg {
			if _, err := io.WriteString(writer, entry.Body); err != nil {
				t.Fatalf("writing tar body for %s: %v", entry.Name, err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	return buffer.Bytes()
}

// TarGz returns a gzip-compressed tar stream containing entries.
func TarGz(t testing.TB, entries []Entry) []byte {
	t.Helper()
	return Compress(t, "gzip", Tar(t, entries))
}

// WriteTarGz writes a gzip-compressed tar archive to path.
func WriteTarGz(t testing.TB, path string, entries []Entry) {
	t.Helper()
	if err := os.WriteFile(path, TarGz(t, entries), 0644); err != nil {
		t.Fatalf("writing archive %s: %v", path, err)
	}
}

// Compress wraps data in the named format: "gzip", "zstd", or "lz4".
func Compress(t testing.TB, format string, data []byte) []byte {
	t.Helper()

	var buffer bytes.Buffer
	var writer io.WriteCloser
	switch format {
	case "gzip":
		writer = gzip.NewWriter(&buffer)
	case "zstd":
		encoder, err := zstd.NewWriter(&buffer)
		if err != nil {
			t.Fatalf("creating zstd writer: %v", err)
		}
		writer = encoder
	case "lz4":
		writer = lz4.NewWriter(&buffer)
	default:
		t.Fatalf("unknown compression format %q", format)
	}
	if _, err := writer.Write(data); err != nil {
		t.Fatalf("compressing with %s: %v", format, err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing %s writer: %v", format, err)
	}
	return buffer.Bytes()
}

// ErrInjected is returned by FailingReader once its prefix is consumed.
var ErrInjected = errors.New("injected read failure")

// FailingReader returns the first limit bytes of data and then fails
// every read with ErrInjected.
func FailingReader(data []byte, limit int) io.ReadCloser {
	if limit > len(data) {
		limit = len(data)
	}
	return io.NopCloser(io.MultiReader(bytes.NewReader(data[:limit]), errorReader{}))
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) {
	return 0, ErrInjected
}
