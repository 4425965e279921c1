// ebzip compresses, uncompresses and inspects the physical files of
// EB/EPWING CD-ROM books. Invoked as ebunzip or ebzipinfo it defaults to
// the matching action.
package main

import (
	"os"

	"github.com/mistydemeo/eb/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[0], os.Args[1:]))
}
