package main

import (
	"fmt"
	"os"

	"github.com/sandeepkv93/edu-session-service/internal/cli"
)

func main() {
	if err := cli.NewServerCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
