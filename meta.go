package asftp

// Rename moves oldN to newN at the protocol level and resolves with the
// target's metadata.  The rename fails if newN already exists; the
// connection remains usable after such a failure.
func (c *Connection) Rename(oldN, newN string) <-chan AsyncResult[*FileMetadata] {
	if 0 == len(oldN) || 0 == len(newN) {
		return reject[*FileMetadata](KindInvalidArguments, "rename: empty path")
	}
	return invoke(c, "rename",
		func(s Session) (*FileMetadata, error) {
			if err := s.Rename(oldN, newN); err != nil {
				return nil, chainf(err, KindRename, "rename %s to %s", oldN, newN)
			}
			fi, err := s.Stat(newN)
			if err != nil {
				return nil, chainf(err, KindStat, "stat renamed %s", newN)
			}
			return metadataOf(newN, fi), nil
		})
}

// RemoveFile deletes the file at pathN.
func (c *Connection) RemoveFile(pathN string) <-chan error {
	if 0 == len(pathN) {
		return rejectErr(KindInvalidArguments, "removeFile: empty path")
	}
	return invokeErr(c, "removeFile",
		func(s Session) error {
			if err := s.Remove(pathN); err != nil {
				return chainf(err, KindRemoveFile, "remove %s", pathN)
			}
			return nil
		})
}

// RemoveDirectory deletes the directory at pathN.  The protocol offers no
// finer distinction, so removing a non-empty directory fails with the
// same kind as any other rejection.
func (c *Connection) RemoveDirectory(pathN string) <-chan error {
	if 0 == len(pathN) {
		return rejectErr(KindInvalidArguments, "removeDirectory: empty path")
	}
	return invokeErr(c, "removeDirectory",
		func(s Session) error {
			if err := s.RemoveDirectory(pathN); err != nil {
				return chainf(err, KindRemoveDirectory, "rmdir %s", pathN)
			}
			return nil
		})
}
