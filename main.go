// Package main is the entry point for the Spindle measurement middlebox.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/spindle/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
