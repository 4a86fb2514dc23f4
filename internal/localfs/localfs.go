// Package localfs proxies the subset of the os package the local-save
// writer needs, adapted from the teacher's internal.OsProxy (a much wider
// proxy used across the whole go-steputils tree). Trimmed to exactly the
// three calls a truncate-create-and-append writer makes, so tests can swap
// in a fake without touching disk.
package localfs

import "os"

// FS is the subset of the os package used by the local-save writer.
type FS interface {
	Create(name string) (*os.File, error)
	Stat(name string) (os.FileInfo, error)
	Remove(name string) error
}

// Real delegates to the real os package.
type Real struct{}

func (Real) Create(name string) (*os.File, error)  { return os.Create(name) } //nolint:revive
func (Real) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }   //nolint:revive
func (Real) Remove(name string) error              { return os.Remove(name) } //nolint:revive
