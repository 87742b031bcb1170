package main

import (
	"context"
	"os"

	"github.com/dmorgan81/circuitcraft/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
