package ebzip

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// The trap removes a half-written output file when the process is killed.
// Its state is the one truly process-global piece of the tool: the cells
// name the output currently being produced, and the handler's whole job is
// close + unlink + exit(1). Only one output is ever open at a time.
var trap struct {
	sync.Mutex
	once sync.Once
	ch   chan os.Signal
	file *os.File
	path string
}

var trapSignals = []os.Signal{unix.SIGHUP, unix.SIGINT, unix.SIGQUIT, unix.SIGTERM}

// armTrap registers the output path (and later its open file via
// setTrapFile) for removal on SIGHUP/SIGINT/SIGQUIT/SIGTERM. The handler
// goroutine is started once and reused across files.
func armTrap(path string) {
	trap.once.Do(func() {
		trap.ch = make(chan os.Signal, 1)
		go func() {
			<-trap.ch
			trap.Lock()
			if trap.file != nil {
				trap.file.Close()
			}
			if trap.path != "" {
				os.Remove(trap.path)
			}
			os.Exit(1)
		}()
	})
	trap.Lock()
	trap.path = path
	trap.file = nil
	trap.Unlock()
	signal.Notify(trap.ch, trapSignals...)
}

func setTrapFile(f *os.File) {
	trap.Lock()
	trap.file = f
	trap.Unlock()
}

// disarmTrap restores the default signal disposition once the output file
// has been fully written and closed.
func disarmTrap() {
	signal.Stop(trap.ch)
	signal.Reset(trapSignals...)
	trap.Lock()
	trap.file = nil
	trap.path = ""
	trap.Unlock()
}
