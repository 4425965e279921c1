package ebzip

import (
	"os"
	"syscall"
	"time"
)

// atime extracts the access time so that transformed output can carry the
// input's stamps.
func atime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Atim.Unix())
	}
	return fi.ModTime()
}
