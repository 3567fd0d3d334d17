// Package pathmap projects remote device paths into a local backup root.
package pathmap

import (
	"path/filepath"
	"strings"
)

// Local returns where remotePath is stored under backupRoot.
// The leading "/" is dropped and the rest is joined with the local separator.
func Local(remotePath, backupRoot string) string {
	rel := strings.TrimLeft(remotePath, "/")
	return filepath.Join(backupRoot, filepath.FromSlash(rel))
}
