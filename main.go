package main

import (
	"os"

	"github.com/bebsworthy/arcset/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
