// The main package for the stockwatch-monitor executable.
package main

import (
	"github.com/JakeFAU/stockwatch-monitor/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
