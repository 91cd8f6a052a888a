// The main package for the awwvision executable.
package main

import (
	"github.com/JakeFAU/awwvision/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
