// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest provides the hash functions used to address cached
// content.
//
// Three digests appear in the system, each with one job:
//
//   - [SHA256Hex] names rootfs images. The input is the archive's source
//     identifier string, not its bytes, so the key is known before any
//     download starts.
//   - [MD5Hex] namespaces a shared sandbox base directory by output base
//     path. It only needs to be stable and short; it is not a security
//     boundary.
//   - [Hash] (BLAKE3, keyed per domain) addresses action-cache entries
//     and the blobs they reference.
package digest

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// SHA256Hex returns the lowercase hex SHA-256 of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// MD5Hex returns the lowercase hex MD5 of s.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// Domain selects the BLAKE3 key so identical bytes hashed for different
// purposes never collide.
type Domain [32]byte

// Hash domains. Changing a key invalidates every stored digest in that
// domain.
var (
	ActionDomain = Domain{
		'b', 'u', 'r', 'e', 'a', 'u', '.', 's', 'p', 'a', 'w', 'n', '.',
		'a', 'c', 't', 'i', 'o', 'n',
	}

	BlobDomain = Domain{
		'b', 'u', 'r', 'e', 'a', 'u', '.', 's', 'p', 'a', 'w', 'n', '.',
		'b', 'l', 'o', 'b',
	}
)

// String returns the hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText encodes h as hex so digests appear as strings in CBOR
// records and logs.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses a hex digest.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Parse decodes a 64-character hex digest.
func Parse(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("digest is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// Bytes computes the keyed hash of data in domain.
func Bytes(domain Domain, data []byte) Hash {
	hasher := newHasher(domain)
	hasher.Write(data)
	return sum(hasher)
}

// Reader streams r through the keyed hash.
func Reader(domain Domain, r io.Reader) (Hash, error) {
	hasher := newHasher(domain)
	if _, err := io.Copy(hasher, r); err != nil {
		return Hash{}, err
	}
	return sum(hasher), nil
}

// File hashes the contents of the file at path in the blob domain.
func File(path string) (Hash, error) {
	file, err := os.Open(path)
	if err != nil {
		return Hash{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hash, err := Reader(BlobDomain, file)
	if err != nil {
		return Hash{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return hash, nil
}

func newHasher(domain Domain) *blake3.Hasher {
	hasher, err := blake3.NewKeyed(domain[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("digest: invalid domain key: " + err.Error())
	}
	return hasher
}

func sum(hasher *blake3.Hasher) Hash {
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
