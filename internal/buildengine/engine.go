// Package buildengine implements the build driver. It treats the build
// backend as an opaque external executable with a fixed CLI contract:
// shell out, scrape output, wrap errors, rather than reimplementing any
// build protocol in-process.
package buildengine

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/corebrew/corebrew/internal/gps"
)

// FileType classifies one row of a BuildArtifact's file manifest.
type FileType int

const (
	FileRegular FileType = iota
	FileDir
	FileSymlink
	FileDevice
)

// FileManifestEntry is one file produced by a build.
type FileManifestEntry struct {
	Path            string
	Type            FileType
	Digest          string // hex SHA-256, empty for directories/devices
	Mode            os.FileMode
	Owner           string
	ConfigProtected bool
}

// BuildArtifact is the build driver's output, consumed by the
// transaction engine.
type BuildArtifact struct {
	PackageID  gps.PackageId
	Version    gps.Version
	FlagVector map[string]bool
	RootDir    string
	Manifest   []FileManifestEntry
	BackendLog string
}

// Environment composes the environment a build backend invocation runs
// under: the toolchain selection, cross-compilation target, and any
// sandboxing flags.
type Environment struct {
	Toolchain      string
	CrossCompile   string // target triple, empty for native builds
	SandboxEnabled bool
	ExtraEnv       map[string]string
}

func (e Environment) toEnviron(base []string) []string {
	out := append([]string(nil), base...)
	if e.Toolchain != "" {
		out = append(out, "COREBREW_TOOLCHAIN="+e.Toolchain)
	}
	if e.CrossCompile != "" {
		out = append(out, "COREBREW_CROSS_COMPILE="+e.CrossCompile)
	}
	if e.SandboxEnabled {
		out = append(out, "COREBREW_SANDBOX=1")
	}
	for k, v := range e.ExtraEnv {
		out = append(out, k+"="+v)
	}
	return out
}

// Driver invokes a build backend executable for a single package.
type Driver struct {
	// BackendPath is the opaque backend executable, invoked as:
	//   <BackendPath> build --target <BuildTarget> --root <stage dir> [--flag=name=bool]...
	// The exact contract is external to this repository: this package
	// does not compile code itself, only drives whatever backend is
	// configured.
	BackendPath string
	Log         *logrus.Logger
}

// NewDriver returns a Driver logging through a fresh logrus.Logger if log
// is nil, so callers always have *some* logger to write to.
func NewDriver(backendPath string, log *logrus.Logger) *Driver {
	if log == nil {
		log = logrus.New()
	}
	return &Driver{BackendPath: backendPath, Log: log}
}

// Build runs the backend for rec under env, staging output into rootDir,
// and returns the resulting BuildArtifact once the backend exits cleanly.
func (d *Driver) Build(ctx context.Context, rec *gps.PackageRecord, flags map[string]bool, env Environment, rootDir string) (*BuildArtifact, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "buildengine: creating stage root")
	}

	args := []string{"build", "--target", rec.BackendTarget, "--root", rootDir}
	for name, on := range flags {
		args = append(args, "--flag="+name+"="+boolFlag(on))
	}

	cmd := exec.CommandContext(ctx, d.BackendPath, args...)
	cmd.Env = env.toEnviron(os.Environ())

	logPath := filepath.Join(rootDir, ".corebrew-build.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, errors.Wrap(err, "buildengine: creating build log")
	}
	defer logFile.Close()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "buildengine: attaching stdout")
	}
	cmd.Stderr = cmd.Stdout

	entry := d.Log.WithFields(logrus.Fields{
		"package": rec.Id.String(),
		"version": rec.Version.String(),
		"backend": d.BackendPath,
	})
	entry.Info("starting build")

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "buildengine: starting backend")
	}

	if err := streamLog(stdout, logFile, entry); err != nil {
		entry.WithError(err).Warn("error while streaming backend output")
	}

	if err := cmd.Wait(); err != nil {
		return nil, errors.Wrapf(err, "buildengine: backend for %s failed, see %s", rec.Id.String(), logPath)
	}
	entry.Info("build finished")

	manifest, err := scanManifest(rootDir)
	if err != nil {
		return nil, errors.Wrap(err, "buildengine: scanning build output")
	}

	return &BuildArtifact{
		PackageID:  rec.Id,
		Version:    rec.Version,
		FlagVector: flags,
		RootDir:    rootDir,
		Manifest:   manifest,
		BackendLog: logPath,
	}, nil
}

func boolFlag(on bool) string {
	if on {
		return "true"
	}
	return "false"
}

// streamLog copies the backend's combined output to the log file line by
// line and into the logger at debug level, as the output is produced.
func streamLog(r io.Reader, logFile io.Writer, entry *logrus.Entry) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := io.WriteString(logFile, line+"\n"); err != nil {
			return err
		}
		entry.Debug(line)
	}
	return scanner.Err()
}

// scanManifest walks the backend's staged output directory and records
// every file it produced, hashing regular files so the transaction
// engine can verify collisions and the installed database can record
// provenance.
func scanManifest(rootDir string) ([]FileManifestEntry, error) {
	var manifest []FileManifestEntry
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == rootDir {
			return nil
		}
		rel, relErr := filepath.Rel(rootDir, path)
		if relErr != nil {
			return relErr
		}
		if rel == ".corebrew-build.log" {
			return nil
		}

		entry := FileManifestEntry{Path: rel, Mode: info.Mode()}
		switch {
		case info.IsDir():
			entry.Type = FileDir
		case info.Mode()&os.ModeSymlink != 0:
			entry.Type = FileSymlink
		case info.Mode()&os.ModeDevice != 0:
			entry.Type = FileDevice
		default:
			entry.Type = FileRegular
			digest, hashErr := hashFile(path)
			if hashErr != nil {
				return hashErr
			}
			entry.Digest = digest
		}
		manifest = append(manifest, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
