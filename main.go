package main

import (
	"os"

	"github.com/example/webcrawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
