// Package cmd provides the CLI commands for turbomcp.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turbomcp/turbomcp/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "turbomcp",
	Short: "turbomcp - Model Context Protocol server runtime",
	Long: `turbomcp is a standalone runtime for the Model Context Protocol (MCP).

It speaks the MCP 2025-06-18 wire protocol over any combination of stdio,
Streamable HTTP+SSE, WebSocket, TCP, and Unix domain socket transports,
dispatching initialize/tools/resources/prompts/completion requests through
a shared handler registry.

Quick start:
  1. Create a config file: turbomcp.yaml
  2. Run: turbomcp serve

Configuration:
  Config is loaded from turbomcp.yaml in the current directory,
  $HOME/.turbomcp/, or /etc/turbomcp/.

  Environment variables can override config values with the TURBOMCP_ prefix.
  Example: TURBOMCP_TRANSPORTS_HTTP_ADDR=:9090

Commands:
  serve       Start the MCP runtime
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./turbomcp.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
