// Command turbomcp runs the MCP protocol-core runtime: a session machine,
// method router, and multi-transport server wired together by config.
package main

import "github.com/turbomcp/turbomcp/cmd/turbomcp/cmd"

func main() {
	cmd.Execute()
}
