// Package main provides the neomap CLI: the HTTP service plus a few
// commands for inspecting stored layers.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var envFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		errorStyle.Fprintf(os.Stderr, "neomap: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "neomap",
	Short: "Map layers over a Neo4j graph",
	Long: `neomap turns layer configurations into Cypher, runs them against Neo4j
and serves the resulting points and relationships to a map client.

Settings come from the environment (optionally a .env file).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Load environment variables from this file when it exists")
	rootCmd.Version = Version
}
