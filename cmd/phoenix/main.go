package main

import (
	"github.com/deepnoodle-ai/phoenix/cmd/phoenix/cli"
)

func main() {
	cli.Execute()
}
