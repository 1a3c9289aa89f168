// The main package for the searchsync executable.
package main

import (
	"github.com/seolens/searchsync/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
