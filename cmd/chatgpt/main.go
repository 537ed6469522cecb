// chatGPT - Personalized ChatGPT client that remembers preferences and profile facts
// Based on DotAgent and nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 chatGPT contributors

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "chatgpt"

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	if buildTime != "" {
		fmt.Fprintf(w, "  Build: %s\n", buildTime)
	}
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	fmt.Fprintf(w, "  Go: %s\n", goVer)
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatgpt", "config.json")
}

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
