// Package main provides the entry point for the tastetrainer CLI.
package main

import "github.com/thebtf/tastetrainer/internal/cmd"

func main() {
	cmd.Execute()
}
