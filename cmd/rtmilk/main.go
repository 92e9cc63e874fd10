package main

import (
	"os"

	"rtmilk/cmd/rtmilk/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, nil))
}
