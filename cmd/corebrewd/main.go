// Command corebrewd is the service supervisor daemon. It loads service
// definitions from a directory, accepting both the native TOML dialect
// and legacy systemd .service units, and runs them under
// internal/supervisor until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/corebrew/corebrew/internal/supervisor"
)

func main() {
	c := &Config{
		Args:   os.Args,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	os.Exit(c.Run())
}

// Config is a plain struct holding everything main()'s environment
// provides, so Run is testable without touching the real process.
type Config struct {
	Args           []string
	Stdout, Stderr io.Writer
}

func (c *Config) Run() int {
	fs := flag.NewFlagSet("corebrewd", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	configDir := fs.String("config-dir", "/etc/corebrew/services.d", "directory of service definitions")
	logLevel := fs.String("log-level", "info", "logrus level: debug|info|warn|error")
	if err := fs.Parse(c.Args[1:]); err != nil {
		return 2
	}

	log := logrus.New()
	log.SetOutput(c.Stderr)
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(c.Stderr, "corebrewd: invalid -log-level:", err)
		return 2
	}
	log.SetLevel(level)

	defs, err := loadDefinitions(*configDir)
	if err != nil {
		log.WithError(err).Error("failed to load service definitions")
		return 1
	}
	log.WithField("count", len(defs)).Info("loaded service definitions")

	mgr, err := supervisor.NewManager(defs, log)
	if err != nil {
		log.WithError(err).Error("failed to build supervisor")
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := mgr.Run(ctx); err != nil {
		log.WithError(err).Error("supervisor exited with error")
		return 1
	}
	return 0
}

// loadDefinitions reads every *.toml and *.service file in dir, parsing
// each through the matching dialect loader.
func loadDefinitions(dir string) ([]*supervisor.ServiceDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var defs []*supervisor.ServiceDefinition
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch ext := filepath.Ext(e.Name()); ext {
		case ".toml":
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			def, err := supervisor.LoadTOML(data)
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		case ".service":
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			name := strings.TrimSuffix(e.Name(), ext)
			def, err := supervisor.LoadSystemd(name, string(data))
			if err != nil {
				return nil, err
			}
			defs = append(defs, def)
		}
	}
	return defs, nil
}
