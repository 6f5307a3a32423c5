//go:build unix

package fileid

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// key formats the device number in hex and the inode in decimal.
func key(path string) string {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return ""
	}
	return fmt.Sprintf("%x:%d", uint64(st.Dev), uint64(st.Ino))
}
