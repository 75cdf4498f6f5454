// Package main is the picsim command.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/picsim/picsim/cmd"
)

func main() {
	cmd.Execute()

	atexit.Exit(0)
}
