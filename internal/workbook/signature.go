package workbook

import (
	"fmt"
	"os"
)

// Signature computes the short cache-invalidation string derived from the
// workbook's modification time and size. Any change to either invalidates
// every derived cache entry for the workbook.
func Signature(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size()), nil
}
