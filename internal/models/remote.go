package models

// EntryKind classifies an entry returned by a directory listing.
type EntryKind int

// Entry kinds reported by a device.
const (
	EntryOther EntryKind = iota
	EntryDirectory
	EntryFile
)

func (k EntryKind) String() string {
	switch k {
	case EntryDirectory:
		return "dir"
	case EntryFile:
		return "file"
	default:
		return "other"
	}
}

// RemoteEntry is one item of a remote directory listing.
type RemoteEntry struct {
	Name string // base name, no separators
	Kind EntryKind
}

// DiscoveryResult holds the remote tree found by a traversal.
type DiscoveryResult struct {
	Directories []string // visit order, root mount points included
	Files       []string // discovery order
}
