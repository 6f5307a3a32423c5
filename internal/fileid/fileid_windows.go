//go:build windows

package fileid

import (
	"encoding/hex"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// fileIDInfoClass is FileIdInfo in FILE_INFO_BY_HANDLE_CLASS.
const fileIDInfoClass = 18

// fileIDInfo mirrors FILE_ID_INFO.
type fileIDInfo struct {
	VolumeSerialNumber uint64
	FileID             [16]byte
}

// key prefers the 128-bit id from FileIdInfo, which ReFS needs, and falls
// back to the 64-bit file index on older systems.
func key(path string) string {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return ""
	}
	// FILE_FLAG_BACKUP_SEMANTICS lets directories open too.
	h, err := windows.CreateFile(name, 0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(h)

	var info fileIDInfo
	if err := windows.GetFileInformationByHandleEx(h, fileIDInfoClass,
		(*byte)(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info))); err == nil {
		// FILE_ID_128 is little-endian; print it most significant byte first.
		id := info.FileID
		for i, j := 0, len(id)-1; i < j; i, j = i+1, j-1 {
			id[i], id[j] = id[j], id[i]
		}
		return fmt.Sprintf("%x:%s", info.VolumeSerialNumber, hex.EncodeToString(id[:]))
	}

	var legacy windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &legacy); err != nil {
		return ""
	}
	return fmt.Sprintf("%x:%08x%08x", legacy.VolumeSerialNumber, legacy.FileIndexHigh, legacy.FileIndexLow)
}
