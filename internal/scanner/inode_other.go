//go:build !linux && !darwin

package scanner

import "os"

// inodeOf has no portable equivalent outside unix; rotation detection falls
// back to size-only (a truncated file still resets the offset in tail()).
func inodeOf(info os.FileInfo) uint64 {
	return 0
}
