package main

import (
	"os"

	"tradecore/cmd/tradecored/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
