//go:build mage

// Package main provides build targets for the tracker project using Mage.
//
// Usage:
//
//	mage build          Compile the tracker binary to bin/
//	mage test:all       Run all tests
//	mage test:unit      Run tests without the race detector or cache busting
//	mage test:cover     Run tests with a coverage profile
//	mage lint           Run golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install tracker to GOPATH/bin
//	mage stats          Print Go LOC and documentation word counts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binLint    = "golangci-lint"
	binaryName = "tracker"
	binaryDir  = "bin"
	cmdDir     = "./cmd/tracker"
)

// Build compiles the tracker binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	_ = os.Remove("coverage.out")
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
