package pathmap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocal(t *testing.T) {
	root := filepath.Join("backups", "Flipper_20240501_100000")

	tests := []struct {
		name   string
		remote string
		want   string
	}{
		{"mount point", "/int", filepath.Join(root, "int")},
		{"nested file", "/ext/apps/Tools/clock.fap", filepath.Join(root, "ext", "apps", "Tools", "clock.fap")},
		{"double slash", "//ext/a.txt", filepath.Join(root, "ext", "a.txt")},
		{"dotfile", "/int/.thumbs", filepath.Join(root, "int", ".thumbs")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Local(tt.remote, root))
		})
	}
}

func TestLocal_Injective(t *testing.T) {
	remotes := []string{
		"/int",
		"/ext",
		"/int/a.txt",
		"/int/sub",
		"/int/sub/b.txt",
		"/ext/int",
		"/ext/int/a.txt",
		"/ext/sub b.txt",
	}

	seen := make(map[string]string)
	for _, r := range remotes {
		local := Local(r, "/backup")
		prev, dup := seen[local]
		assert.False(t, dup, "%s and %s both map to %s", prev, r, local)
		seen[local] = r
	}
}
