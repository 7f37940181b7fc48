package asftp

import (
	"io"
	"os"
)

// ListFiles retrieves the entries of dirN, in protocol iteration order
// (not sorted).  "." and ".." are elided.  An empty directory resolves
// successfully with an empty slice.
func (c *Connection) ListFiles(dirN string) <-chan AsyncResult[[]*FileMetadata] {
	if 0 == len(dirN) {
		return reject[[]*FileMetadata](KindInvalidArguments, "listFiles: empty path")
	}
	return invoke(c, "listFiles",
		func(s Session) (files []*FileMetadata, err error) {
			dh, err := s.OpenDir(dirN)
			if err != nil {
				err = chainf(err, KindDirectoryOpen, "open dir %s", dirN)
				return
			}
			var batch []os.FileInfo
			for {
				batch, err = dh.Next()
				if err != nil {
					if io.EOF == err {
						err = nil
						break
					}
					dh.Close() // best effort - the read failure is primary
					err = chainf(err, KindDirectoryRead, "read dir %s", dirN)
					return
				}
				for _, fi := range batch {
					name := fi.Name()
					if "." == name || ".." == name {
						continue
					}
					files = append(files, metadataEntry(dirN, fi))
				}
			}
			if cerr := dh.Close(); cerr != nil {
				files = nil
				err = chainf(cerr, KindDirectoryClose, "close dir %s", dirN)
			}
			return
		})
}

// MakeDirectory creates dirN and resolves with its metadata.
func (c *Connection) MakeDirectory(dirN string) <-chan AsyncResult[*FileMetadata] {
	if 0 == len(dirN) {
		return reject[*FileMetadata](KindInvalidArguments, "makeDirectory: empty path")
	}
	return invoke(c, "makeDirectory",
		func(s Session) (*FileMetadata, error) {
			if err := s.Mkdir(dirN); err != nil {
				return nil, chainf(err, KindMakeDirectory, "mkdir %s", dirN)
			}
			fi, err := s.Stat(dirN)
			if err != nil {
				return nil, chainf(err, KindMakeDirectory, "stat new dir %s", dirN)
			}
			return metadataOf(dirN, fi), nil
		})
}
