package main

import (
	"os"

	_ "github.com/attachehq/attache/pkg/logger/autoload"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
