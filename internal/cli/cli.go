// Package cli implements the shared command line of ebzip, ebunzip and
// ebzipinfo: one flag surface, with the default action chosen by the name
// the tool was invoked under.
package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	eb "github.com/mistydemeo/eb"
	"github.com/mistydemeo/eb/internal/ebzip"
)

const ebzipHelp = `Usage: ebzip [option...] [book-directory]
Options:
  -f  --force-overwrite      force overwrite of output files
  -h  --help                 display this help, then exit
  -i  --information          list information of compressed files
  -k  --keep                 keep (don't delete) original files
  -l INTEGER  --level INTEGER
                             compression level; 0..5
                             (default: 0)
  -n  --no-overwrite         don't overwrite output files
  -o DIRECTORY  --output-directory DIRECTORY
                             output files under DIRECTORY
                             (default: .)
  -q  --quiet  --silent      suppress all warnings
  -s TYPE[,TYPE...]  --skip-content TYPE[,TYPE...]
                             skip content; font, graphic, sound or movie
                             (default: none is skipped)
  -S SUBBOOK[,SUBBOOK...]  --subbook SUBBOOK[,SUBBOOK...]
                             target subbook
                             (default: all subbooks)
  -t  --test                 only check for input files
  -u  --uncompress           uncompress files
  -v  --version              display version number, then exit
  -w MODE  --overwrite MODE  behavior when an output file already exists;
                             confirm, force or no
                             (default: confirm)
  -z  --compress             compress files

Argument:
  book-directory             top directory of a CD-ROM book
                             (default: .)
`

type action int

const (
	actionZip action = iota
	actionUnzip
	actionInfo
)

// commaList accumulates comma-separated values across flag repetitions.
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

func usage(fset *flag.FlagSet, helpText string) func() {
	return func() {
		fmt.Fprintln(os.Stderr, helpText)
	}
}

func tryHelp(invokedName string) int {
	fmt.Fprintf(os.Stderr, "try `%s --help' for more information\n", invokedName)
	return 1
}

// Main runs the shared ebzip command line and returns the process exit
// code. invokedName selects the default action: ebunzip uncompresses,
// ebzipinfo lists, anything else compresses.
func Main(invokedName string, args []string) int {
	// The action can also be implied by the name the binary was invoked
	// under, e.g. a symlink named ebunzip.
	act := actionZip
	switch filepath.Base(invokedName) {
	case "ebunzip":
		act = actionUnzip
	case "ebzipinfo":
		act = actionInfo
	}

	run := ebzip.NewRun()
	// Never block on a prompt when there is no terminal to answer it.
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		run.Overwrite = ebzip.OverwriteNo
	}

	fset := flag.NewFlagSet("ebzip", flag.ContinueOnError)
	fset.Usage = usage(fset, ebzipHelp)
	var (
		compress    = fset.Bool("z", false, "compress files")
		uncompress  = fset.Bool("u", false, "uncompress files")
		information = fset.Bool("i", false, "list information of compressed files")
		level       = fset.String("l", "", "compression level (0..5)")
		outDir      = fset.String("o", ".", "output files under DIRECTORY")
		force       = fset.Bool("f", false, "force overwrite of output files")
		noOverwrite = fset.Bool("n", false, "don't overwrite output files")
		overwrite   = fset.String("w", "", "overwrite mode; confirm, force or no")
		keep        = fset.Bool("k", false, "keep (don't delete) original files")
		quiet       = fset.Bool("q", false, "suppress all warnings")
		test        = fset.Bool("t", false, "only check for input files")
		version     = fset.Bool("v", false, "display version number, then exit")
		help        = fset.Bool("h", false, "display this help, then exit")
		subbooks    commaList
		skips       commaList
	)
	fset.Var(&subbooks, "S", "target subbook")
	fset.Var(&skips, "s", "skip content; font, graphic, sound or movie")
	// Long spellings of every option.
	fset.BoolVar(compress, "compress", false, "")
	fset.BoolVar(uncompress, "uncompress", false, "")
	fset.BoolVar(information, "information", false, "")
	fset.StringVar(level, "level", "", "")
	fset.StringVar(outDir, "output-directory", ".", "")
	fset.BoolVar(force, "force-overwrite", false, "")
	fset.BoolVar(noOverwrite, "no-overwrite", false, "")
	fset.StringVar(overwrite, "overwrite", "", "")
	fset.BoolVar(keep, "keep", false, "")
	fset.BoolVar(quiet, "quiet", false, "")
	fset.BoolVar(quiet, "silent", false, "")
	fset.BoolVar(test, "test", false, "")
	fset.BoolVar(version, "version", false, "")
	fset.BoolVar(help, "help", false, "")
	fset.Var(&subbooks, "subbook", "")
	fset.Var(&skips, "skip-content", "")

	if err := fset.Parse(args); err != nil {
		return tryHelp(invokedName)
	}
	if *help {
		fmt.Print(ebzipHelp)
		return 0
	}
	if *version {
		fmt.Printf("ebzip (EB Library) version %s\n", eb.Version)
		return 0
	}

	switch {
	case *compress:
		act = actionZip
	case *uncompress:
		act = actionUnzip
	case *information:
		act = actionInfo
	}

	if *level != "" {
		n, err := strconv.Atoi(*level)
		if err != nil || n < 0 || n > 5 {
			fmt.Fprintf(os.Stderr, "%s: invalid compression level `%s'\n", invokedName, *level)
			return tryHelp(invokedName)
		}
		run.Level = n
	}
	switch *overwrite {
	case "":
		if *force {
			run.Overwrite = ebzip.OverwriteForce
		} else if *noOverwrite {
			run.Overwrite = ebzip.OverwriteNo
		}
	case "confirm":
		run.Overwrite = ebzip.OverwriteConfirm
	case "force":
		run.Overwrite = ebzip.OverwriteForce
	case "no":
		run.Overwrite = ebzip.OverwriteNo
	default:
		fmt.Fprintf(os.Stderr, "%s: invalid overwrite mode `%s'\n", invokedName, *overwrite)
		return tryHelp(invokedName)
	}
	for _, kind := range skips {
		switch strings.ToLower(kind) {
		case "font":
			run.SkipFont = true
		case "graphic":
			run.SkipGraphic = true
		case "sound":
			run.SkipSound = true
		case "movie":
			run.SkipMovie = true
		default:
			fmt.Fprintf(os.Stderr, "%s: invalid content name `%s'\n", invokedName, kind)
			return tryHelp(invokedName)
		}
	}
	run.Keep = *keep
	run.Quiet = *quiet
	run.Test = *test

	if fset.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "%s: too many arguments\n", invokedName)
		return tryHelp(invokedName)
	}
	bookPath := "."
	if fset.NArg() == 1 {
		bookPath = fset.Arg(0)
	}

	// Source files are only ever removed after the whole run succeeded.
	eb.RegisterAtExit(run.UnlinkScheduled)

	var err error
	switch act {
	case actionZip:
		err = run.ZipBook(*outDir, bookPath, subbooks)
	case actionUnzip:
		err = run.UnzipBook(*outDir, bookPath, subbooks)
	case actionInfo:
		err = run.ZipInfoBook(bookPath, subbooks)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", invokedName, err)
		return 1
	}
	if err := eb.RunAtExit(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", invokedName, err)
		return 1
	}
	return 0
}
