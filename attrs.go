package asftp

import (
	"os"
	"path"
	"time"
)

// FileMetadata is a point in time snapshot of one remote item.  It is not
// kept in sync with the remote side after the call that produced it.
type FileMetadata struct {
	Name    string      // base name
	Path    string      // full remote path
	Size    uint64      // bytes
	Mode    os.FileMode // permission and type bits
	ModTime time.Time   // last modification
	IsDir   bool
}

// convert a stat result for pathN to a metadata snapshot
func metadataOf(pathN string, fi os.FileInfo) *FileMetadata {
	return &FileMetadata{
		Name:    path.Base(pathN),
		Path:    pathN,
		Size:    uint64(fi.Size()),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
	}
}

// convert a directory entry of dirN to a metadata snapshot
func metadataEntry(dirN string, fi os.FileInfo) *FileMetadata {
	return &FileMetadata{
		Name:    fi.Name(),
		Path:    path.Join(dirN, fi.Name()),
		Size:    uint64(fi.Size()),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
	}
}
