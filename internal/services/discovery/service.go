// Package discovery walks a device's remote filesystem tree.
package discovery

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/fgeck/fz-backup/internal/models"
	"github.com/rs/zerolog"
)

// Lister lists a remote directory.
type Lister interface {
	List(ctx context.Context, path string) ([]models.RemoteEntry, error)
}

// Service defines the interface for tree discovery.
type Service interface {
	Discover(ctx context.Context, lister Lister, roots []string) (*models.DiscoveryResult, error)
}

// Impl implements the discovery Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new discovery service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// stack is the LIFO work list of directories still to be listed.
type stack []string

func (s *stack) push(p string) { *s = append(*s, p) }

func (s *stack) pop() string {
	old := *s
	p := old[len(old)-1]
	*s = old[:len(old)-1]
	return p
}

// Discover lists every directory reachable from roots, depth first.
// Each directory is listed exactly once. A failed listing aborts the whole
// traversal and no partial result is returned.
func (s *Impl) Discover(ctx context.Context, lister Lister, roots []string) (*models.DiscoveryResult, error) {
	s.logger.Info().Strs("roots", roots).Msg("discovering remote tree")
	start := time.Now()

	result := &models.DiscoveryResult{}
	seen := make(map[string]bool, len(roots))

	var work stack
	// Pushed in reverse so the first root is listed first.
	for i := len(roots) - 1; i >= 0; i-- {
		root := path.Clean("/" + roots[i])
		if seen[root] {
			continue
		}
		seen[root] = true
		work.push(root)
	}

	for len(work) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := work.pop()
		result.Directories = append(result.Directories, dir)

		entries, err := lister.List(ctx, dir)
		if err != nil {
			return nil, &models.FileError{Op: "list", Path: dir, Err: err}
		}

		s.logger.Debug().Str("path", dir).Int("entries", len(entries)).Msg("listed directory")

		for _, e := range entries {
			if !validName(e.Name) {
				s.logger.Warn().Str("dir", dir).Str("name", e.Name).Msg("skipping entry with invalid name")
				continue
			}

			p := path.Join(dir, e.Name)
			switch e.Kind {
			case models.EntryDirectory:
				if seen[p] {
					continue
				}
				seen[p] = true
				work.push(p)
			case models.EntryFile:
				// A listing that repeats a name must not schedule two copies of one file.
				if seen[p] {
					continue
				}
				seen[p] = true
				result.Files = append(result.Files, p)
			default:
				s.logger.Debug().Str("path", p).Msg("ignoring entry that is neither file nor directory")
			}
		}
	}

	s.logger.Info().
		Int("directories", len(result.Directories)).
		Int("files", len(result.Files)).
		Dur("duration", time.Since(start)).
		Msg("discovery completed")

	return result, nil
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}
