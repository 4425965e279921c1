// ebunzip is ebzip with uncompression as the default action.
package main

import (
	"os"

	"github.com/mistydemeo/eb/internal/cli"
)

func main() {
	os.Exit(cli.Main("ebunzip", os.Args[1:]))
}
