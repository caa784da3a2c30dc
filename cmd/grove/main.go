// Command grove edits a persisted forest of named nodes.
package main

import "github.com/mesh-intelligence/grove/internal/cli"

func main() {
	cli.Execute()
}
