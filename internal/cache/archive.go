package cache

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/corebrew/corebrew/internal/buildengine"
	"github.com/corebrew/corebrew/internal/gps"
)

// Compression names one of the binary package format's selectable
// codecs. Only gzip and zstd have writers wired: stdlib compress/bzip2
// is read-only, and neither bzip2 nor xz has a writer available here,
// so those two stay unimplemented rather than faked.
type Compression string

const (
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// packageSidecar is the archive's first tar entry: package metadata and
// the file manifest's digests, read back without decompressing the whole
// payload when a caller only wants to inspect an archive.
type packageSidecar struct {
	Id       gps.PackageId                  `json:"id"`
	Version  string                         `json:"version"`
	Manifest []buildengine.FileManifestEntry `json:"manifest"`
}

const sidecarName = ".corebrew-manifest.json"

// PackArtifact archives a built artifact's staged tree into w, prefixed
// by the sidecar manifest, then compressed with the chosen codec. The
// result is the unit `corebrew`'s binary package format ships: one file
// containing both the metadata a remote catalog needs to index it and
// the payload a remote installer needs to apply it.
func PackArtifact(artifact *buildengine.BuildArtifact, compression Compression, w io.Writer) error {
	cw, err := newCompressWriter(compression, w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)

	sidecar := packageSidecar{Id: artifact.PackageID, Version: artifact.Version.String(), Manifest: artifact.Manifest}
	sidecarBytes, err := json.Marshal(sidecar)
	if err != nil {
		return errors.Wrap(err, "cache: marshaling package sidecar")
	}
	if err := tw.WriteHeader(&tar.Header{Name: sidecarName, Size: int64(len(sidecarBytes)), Mode: 0o644}); err != nil {
		return errors.Wrap(err, "cache: writing sidecar header")
	}
	if _, err := tw.Write(sidecarBytes); err != nil {
		return errors.Wrap(err, "cache: writing sidecar")
	}

	for _, f := range artifact.Manifest {
		if err := writeArtifactEntry(tw, artifact.RootDir, f); err != nil {
			return errors.Wrapf(err, "cache: archiving %s", f.Path)
		}
	}

	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "cache: closing tar stream")
	}
	return cw.Close()
}

func writeArtifactEntry(tw *tar.Writer, rootDir string, f buildengine.FileManifestEntry) error {
	switch f.Type {
	case buildengine.FileDir:
		return tw.WriteHeader(&tar.Header{Name: f.Path + "/", Typeflag: tar.TypeDir, Mode: int64(f.Mode.Perm())})
	case buildengine.FileSymlink:
		target, err := os.Readlink(filepath.Join(rootDir, f.Path))
		if err != nil {
			return err
		}
		return tw.WriteHeader(&tar.Header{Name: f.Path, Typeflag: tar.TypeSymlink, Linkname: target})
	case buildengine.FileDevice:
		// device nodes aren't portable across archive extraction targets;
		// recorded as an empty regular-file placeholder rather than skipped
		// outright, so the manifest entry and tar entry counts still match.
		return tw.WriteHeader(&tar.Header{Name: f.Path, Typeflag: tar.TypeReg, Mode: int64(f.Mode.Perm())})
	default:
		data, err := os.ReadFile(filepath.Join(rootDir, f.Path))
		if err != nil {
			return err
		}
		if err := tw.WriteHeader(&tar.Header{Name: f.Path, Size: int64(len(data)), Mode: int64(f.Mode.Perm())}); err != nil {
			return err
		}
		_, err = tw.Write(data)
		return err
	}
}

// UnpackArtifact reverses PackArtifact: it decompresses r, extracts every
// entry under destDir, and returns the sidecar manifest it read along
// the way.
func UnpackArtifact(ctx context.Context, r io.Reader, compression Compression, destDir string) ([]buildengine.FileManifestEntry, error) {
	cr, err := newDecompressReader(compression, r)
	if err != nil {
		return nil, err
	}
	defer cr.Close()
	tr := tar.NewReader(cr)

	var manifest []buildengine.FileManifestEntry
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "cache: reading tar entry")
		}

		if hdr.Name == sidecarName {
			var sidecar packageSidecar
			if err := json.NewDecoder(tr).Decode(&sidecar); err != nil {
				return nil, errors.Wrap(err, "cache: decoding package sidecar")
			}
			manifest = sidecar.Manifest
			continue
		}

		if err := extractEntry(tr, hdr, destDir); err != nil {
			return nil, errors.Wrapf(err, "cache: extracting %s", hdr.Name)
		}
	}
	return manifest, nil
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, destDir string) error {
	dest := filepath.Join(destDir, hdr.Name)
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, 0o755)
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		os.Remove(dest)
		return os.Symlink(hdr.Linkname, dest)
	default:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(f, tr)
		return err
	}
}

type compressWriteCloser interface {
	io.Writer
	Close() error
}

func newCompressWriter(c Compression, w io.Writer) (compressWriteCloser, error) {
	switch c {
	case CompressionGzip, "":
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		return zstd.NewWriter(w)
	default:
		return nil, errors.Errorf("cache: unsupported compression %q", c)
	}
}

type decompressReadCloser interface {
	io.Reader
	Close() error
}

type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }

func newDecompressReader(c Compression, r io.Reader) (decompressReadCloser, error) {
	switch c {
	case CompressionGzip, "":
		return gzip.NewReader(r)
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return nopReadCloser{dec.IOReadCloser()}, nil
	default:
		return nil, errors.Errorf("cache: unsupported compression %q", c)
	}
}
