package ephemeral

import (
	"fmt"
	"os"
)

// readFileWindow reads byteLength bytes starting at byteOffset from the
// file at path — content outside the ring buffer's window is always served
// straight off disk, never cached (spec.md §4.2).
func readFileWindow(path string, byteOffset, byteLength int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q for byte window read: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, byteLength)
	n, err := f.ReadAt(buf, byteOffset)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("failed to read byte window [%d:%d] of %q: %w", byteOffset, byteOffset+byteLength, path, err)
	}
	return buf[:n], nil
}
