package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	cfg := &Config{Args: []string{"corebrew", "bogus"}, Stdout: &out, Stderr: &errOut}
	code := cfg.Run()
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "unknown command")
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	cfg := &Config{Args: []string{"corebrew"}, Stdout: &out, Stderr: &errOut}
	code := cfg.Run()
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "Usage")
}

func TestRunSearchAgainstEmptyRoot(t *testing.T) {
	root := t.TempDir()
	var out, errOut bytes.Buffer
	cfg := &Config{Args: []string{"corebrew", "search", "-root", root, "zlib"}, Stdout: &out, Stderr: &errOut}
	code := cfg.Run()
	assert.Equal(t, 0, code)
	assert.Empty(t, out.String())
}

func TestRunListInstalledAgainstEmptyRoot(t *testing.T) {
	root := t.TempDir()
	var out, errOut bytes.Buffer
	cfg := &Config{Args: []string{"corebrew", "list-installed", "-root", root}, Stdout: &out, Stderr: &errOut}
	code := cfg.Run()
	assert.Equal(t, 0, code)
	assert.Empty(t, out.String())
}
