package ebzip

import (
	"fmt"
	"os"
)

// stringList is an ordered set of paths. It backs both the unlink ledger and
// the walkers' seen set (books may alias one physical file under several
// subbook entries).
type stringList struct {
	paths []string
	seen  map[string]bool
}

func (l *stringList) add(path string) {
	if l.seen[path] {
		return
	}
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	l.seen[path] = true
	l.paths = append(l.paths, path)
}

func (l *stringList) has(path string) bool {
	return l.seen[path]
}

// ScheduleUnlink records a source file to be removed once the whole run has
// succeeded. Nothing is removed yet.
func (r *Run) ScheduleUnlink(path string) {
	r.ledger.add(path)
}

// UnlinkScheduled removes every recorded source file, in order. Individual
// failures are warnings; the files merely stay on disk.
func (r *Run) UnlinkScheduled() error {
	for _, path := range r.ledger.paths {
		if err := os.Remove(path); err != nil && !r.Quiet {
			fmt.Fprintf(os.Stderr, "warning: failed to unlink the file: %s\n", path)
		}
	}
	return nil
}
