// cmd/pinctl/main.go
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
