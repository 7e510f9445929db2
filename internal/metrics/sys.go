package metrics

import (
	"fmt"
	"os"
)

// FileSize returns the human readable size of the file at path, or "n/a"
// when it cannot be read.
func FileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "n/a"
	}
	return humanBytes(info.Size())
}

func humanBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
