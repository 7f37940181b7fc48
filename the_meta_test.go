package asftp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRename(t *testing.T) {
	s := newFakeSession()
	s.files["/old.txt"] = []byte("payload")
	c := connectedConn(t, s)

	res := <-c.Rename("/old.txt", "/new.txt")
	require.NoError(t, res.Err)
	assert.Equal(t, "new.txt", res.V.Name)
	assert.Equal(t, "/new.txt", res.V.Path)
	assert.Equal(t, uint64(7), res.V.Size)

	_, gone := s.files["/old.txt"]
	assert.False(t, gone)
	assert.Equal(t, []byte("payload"), s.files["/new.txt"])
}

func TestRenameOntoExisting(t *testing.T) {
	s := newFakeSession()
	s.files["/a"] = []byte("aa")
	s.files["/b"] = []byte("bb")
	c := connectedConn(t, s)

	res := <-c.Rename("/a", "/b")
	require.Error(t, res.Err)
	assert.Equal(t, KindRename, KindOf(res.Err))
	assert.Equal(t, []byte("bb"), s.files["/b"], "target untouched")

	// the connection stays usable after the failure
	lres := <-c.ListFiles("/")
	require.NoError(t, lres.Err)
	assert.Len(t, lres.V, 2)
	assert.True(t, c.IsConnected())
}

func TestRemoveFile(t *testing.T) {
	s := newFakeSession()
	s.files["/junk"] = []byte("x")
	c := connectedConn(t, s)

	require.NoError(t, <-c.RemoveFile("/junk"))
	_, ok := s.files["/junk"]
	assert.False(t, ok)

	err := <-c.RemoveFile("/junk")
	require.Error(t, err)
	assert.Equal(t, KindRemoveFile, KindOf(err))
}

func TestRemoveDirectory(t *testing.T) {
	s := newFakeSession()
	s.dirs["/full"] = true
	s.files["/full/f"] = []byte("x")
	s.dirs["/bare"] = true
	c := connectedConn(t, s)

	require.NoError(t, <-c.RemoveDirectory("/bare"))
	assert.False(t, s.dirs["/bare"])

	// non-empty fails under the same kind - the protocol exposes no finer
	// distinction
	err := <-c.RemoveDirectory("/full")
	require.Error(t, err)
	assert.Equal(t, KindRemoveDirectory, KindOf(err))

	err = <-c.RemoveDirectory("/never")
	assert.Equal(t, KindRemoveDirectory, KindOf(err))
}

func TestMetaBadArgs(t *testing.T) {
	c := connectedConn(t, newFakeSession())
	assert.Equal(t, KindInvalidArguments, KindOf((<-c.Rename("", "/b")).Err))
	assert.Equal(t, KindInvalidArguments, KindOf((<-c.Rename("/a", "")).Err))
	assert.Equal(t, KindInvalidArguments, KindOf(<-c.RemoveFile("")))
	assert.Equal(t, KindInvalidArguments, KindOf(<-c.RemoveDirectory("")))
}
