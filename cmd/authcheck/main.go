package main

import (
	"os"

	"github.com/sandeepkv93/edu-session-service/internal/tools/authcheck"
)

func main() {
	if err := authcheck.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
