package main

import (
	"os"

	"github.com/speedfmt/fmtd/cmd"
)

func main() {
	// cobra has already printed the error by the time Execute returns
	root, _ := cmd.NewRoot()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
