package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, errJobCancelled) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitCancelled)
		}
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
