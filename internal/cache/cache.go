// Package cache implements the content-addressed store and fetch layer.
// Downloaded source archives and distfiles are keyed by the SHA-256 of
// their content and sharded two levels deep ("ab/cd/abcd..."), the way
// Go's own module cache shards checkouts, so no single directory ever
// holds more entries than a typical filesystem handles comfortably.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// Store is the content-addressed cache rooted at Dir.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "cache: creating root")
	}
	return &Store{Dir: dir}, nil
}

// shardedPath returns the on-disk path for a given content digest,
// hex-encoded and split "ab/cd/<rest>".
func (s *Store) shardedPath(digestHex string) string {
	if len(digestHex) < 4 {
		return filepath.Join(s.Dir, digestHex)
	}
	return filepath.Join(s.Dir, digestHex[0:2], digestHex[2:4], digestHex)
}

// Has reports whether an entry with the given SHA-256 digest (hex) is
// already cached.
func (s *Store) Has(digestHex string) bool {
	_, err := os.Stat(s.shardedPath(digestHex))
	return err == nil
}

// Path returns the on-disk path for a cached entry, or an error if it is
// not present.
func (s *Store) Path(digestHex string) (string, error) {
	p := s.shardedPath(digestHex)
	if _, err := os.Stat(p); err != nil {
		return "", errors.Wrapf(err, "cache: %s not present", digestHex)
	}
	return p, nil
}

// Store writes r's content into the cache, verifying it hashes to
// wantDigestHex (empty means "trust whatever we read and report the
// digest back"), via the same write-temp/fsync/rename discipline the
// transaction engine uses for installed files.
func (s *Store) Store(r io.Reader, wantDigestHex string) (digestHex string, err error) {
	tmp, err := os.CreateTemp(s.Dir, "fetch-*")
	if err != nil {
		return "", errors.Wrap(err, "cache: creating temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "cache: writing temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "cache: fsync temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "cache: closing temp file")
	}

	digestHex = hex.EncodeToString(h.Sum(nil))
	if wantDigestHex != "" && wantDigestHex != digestHex {
		return "", errors.Errorf("cache: digest mismatch: want %s, got %s", wantDigestHex, digestHex)
	}

	dest := s.shardedPath(digestHex)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errors.Wrap(err, "cache: creating shard directory")
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", errors.Wrap(err, "cache: committing cache entry")
	}
	return digestHex, nil
}

// FetchTo downloads remote into the cache over an http(s) or rsync
// transport, verifying the result against wantDigestHex.
func (s *Store) FetchTo(ctx context.Context, remote, transport, wantDigestHex string) (string, error) {
	switch transport {
	case "http", "https":
		return s.fetchHTTP(ctx, remote, wantDigestHex)
	case "rsync":
		return s.fetchRsync(ctx, remote, wantDigestHex)
	default:
		return "", errors.Errorf("cache: unsupported fetch transport %q", transport)
	}
}

func (s *Store) fetchHTTP(ctx context.Context, remote, wantDigestHex string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remote, nil)
	if err != nil {
		return "", errors.Wrap(err, "cache: building request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "cache: fetching")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("cache: fetching %s: HTTP %d", remote, resp.StatusCode)
	}
	digest, err := s.Store(resp.Body, wantDigestHex)
	if err != nil {
		return "", err
	}
	return s.shardedPath(digest), nil
}

// fetchRsync shells out to the system rsync binary, treating it as an
// opaque external process rather than reimplementing the protocol.
func (s *Store) fetchRsync(ctx context.Context, remote, wantDigestHex string) (string, error) {
	tmpDir, err := os.MkdirTemp(s.Dir, "rsync-*")
	if err != nil {
		return "", errors.Wrap(err, "cache: creating staging dir")
	}
	defer os.RemoveAll(tmpDir)

	dest := filepath.Join(tmpDir, "payload")
	cmd := exec.CommandContext(ctx, "rsync", "-a", remote, dest)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", errors.Wrapf(err, "cache: rsync failed: %s", out)
	}

	f, err := os.Open(dest)
	if err != nil {
		return "", errors.Wrap(err, "cache: opening rsync payload")
	}
	defer f.Close()
	digest, err := s.Store(f, wantDigestHex)
	if err != nil {
		return "", err
	}
	return s.shardedPath(digest), nil
}

// GCPolicy bounds what Sweep removes.
type GCPolicy struct {
	// OlderThan removes entries whose mtime predates now-OlderThan.
	OlderThan time.Duration
	// Keep, if non-nil, is a set of digests (hex) that must never be
	// removed regardless of age — e.g. distfiles still referenced by an
	// installed package's manifest.
	Keep map[string]bool
}

// Sweep walks the store with godirwalk, faster than filepath.Walk for a
// directory tree this wide and shallow, and removes entries older than
// the policy allows.
func (s *Store) Sweep(policy GCPolicy) (removed []string, err error) {
	cutoff := time.Now().Add(-policy.OlderThan)
	err = godirwalk.Walk(s.Dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			digest := filepath.Base(path)
			if policy.Keep[digest] {
				return nil
			}
			info, statErr := os.Stat(path)
			if statErr != nil {
				return nil
			}
			if policy.OlderThan > 0 && info.ModTime().After(cutoff) {
				return nil
			}
			if rmErr := os.Remove(path); rmErr != nil {
				return rmErr
			}
			removed = append(removed, digest)
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return removed, errors.Wrap(err, "cache: sweeping")
	}
	return removed, nil
}
