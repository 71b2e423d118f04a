// The main package for the tagrelay executable.
package main

import (
	"github.com/JakeFAU/tagrelay/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
