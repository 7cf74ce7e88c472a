// Package app provides the application helpers for the command line tool.
package app

import (
	"fmt"
	"strings"

	"github.com/retroenv/c64re/internal/block"
	"github.com/retroenv/c64re/internal/graph"
	"github.com/retroenv/retrogolib/log"
)

// Name is the tool name shown in the banner.
const Name = "c64re"

// PrintBanner prints application version information.
func PrintBanner(logger *log.Logger, quiet bool, version, commit, date string) {
	if quiet {
		return
	}

	logger.Info(Name, log.String("version", VersionString(version, commit)))

	if date != "" && !strings.Contains(date, "unknown") {
		logger.Info("Build", log.String("date", date))
	}
}

// VersionString combines the version with the short commit hash.
func VersionString(version, commit string) string {
	if commit == "" {
		return version
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s (%s)", version, commit)
}

// PrintInfo prints the information about the loaded program.
func PrintInfo(logger *log.Logger, store block.Reader, g *graph.Graph) {
	logger.Info("Program loaded",
		log.Int("blocks", store.Len()),
		log.Int("nodes", g.NodeCount()),
		log.Int("edges", g.EdgeCount()),
		log.Int("entry_points", len(g.EntryPoints())),
	)
	if dead := len(g.DeadNodes()); dead > 0 {
		logger.Warn("Program contains unreachable nodes", log.Int("count", dead))
	}
}
