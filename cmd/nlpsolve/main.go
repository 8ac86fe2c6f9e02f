package main

import (
	"fmt"
	"os"

	"github.com/copyleftdev/ipoptgo/internal/ipopt"
)

var version = "dev"

func main() {
	if err := newRootCmd(ipopt.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
