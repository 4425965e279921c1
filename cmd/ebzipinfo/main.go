// ebzipinfo is ebzip with the information action as the default.
package main

import (
	"os"

	"github.com/mistydemeo/eb/internal/cli"
)

func main() {
	os.Exit(cli.Main("ebzipinfo", os.Args[1:]))
}
