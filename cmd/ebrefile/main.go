// ebrefile rewrites the catalog of an EB/EPWING book so that it lists only
// a chosen subset of subbooks.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	eb "github.com/mistydemeo/eb"
	"github.com/mistydemeo/eb/internal/refile"
)

const ebrefileHelp = `Usage: ebrefile [option...] [book-directory]
Options:
  -h  --help                 display this help, then exit
  -o DIRECTORY  --output-directory DIRECTORY
                             output files under DIRECTORY
                             (default: .)
  -S SUBBOOK[,SUBBOOK...]  --subbook SUBBOOK[,SUBBOOK...]
                             target subbook
                             (default: all subbooks)
  -v  --version              display version number, then exit

Argument:
  book-directory             top directory of a CD-ROM book
                             (default: .)
`

type commaList []string

func (l *commaList) String() string { return strings.Join(*l, ",") }

func (l *commaList) Set(value string) error {
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*l = append(*l, item)
		}
	}
	return nil
}

func main() {
	fset := flag.NewFlagSet("ebrefile", flag.ContinueOnError)
	fset.Usage = func() { fmt.Fprintln(os.Stderr, ebrefileHelp) }
	var (
		outDir   = fset.String("o", ".", "output files under DIRECTORY")
		version  = fset.Bool("v", false, "display version number, then exit")
		help     = fset.Bool("h", false, "display this help, then exit")
		subbooks commaList
	)
	fset.Var(&subbooks, "S", "target subbook")
	fset.StringVar(outDir, "output-directory", ".", "")
	fset.BoolVar(version, "version", false, "")
	fset.BoolVar(help, "help", false, "")
	fset.Var(&subbooks, "subbook", "")

	if err := fset.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "try `ebrefile --help' for more information")
		os.Exit(1)
	}
	if *help {
		fmt.Print(ebrefileHelp)
		return
	}
	if *version {
		fmt.Printf("ebrefile (EB Library) version %s\n", eb.Version)
		return
	}
	if fset.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "ebrefile: too many arguments")
		fmt.Fprintln(os.Stderr, "try `ebrefile --help' for more information")
		os.Exit(1)
	}
	bookPath := "."
	if fset.NArg() == 1 {
		bookPath = fset.Arg(0)
	}

	if err := refile.Book(*outDir, bookPath, subbooks); err != nil {
		fmt.Fprintf(os.Stderr, "ebrefile: %v\n", err)
		os.Exit(1)
	}
}
