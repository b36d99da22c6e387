package main

import (
	"os"

	"batch-transcriber/cmd/batchscribe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
