package asftp

// An in-process fake of the blocking session library, plus probes the
// tests use to verify single threaded access and handle hygiene.

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	sess  *fakeSession
	err   error         // when set, Dial fails with this
	gateC chan struct{} // when set, Dial waits for a token
	dials atomic.Int32
}

func (d *fakeDialer) Dial(
	host string, port int, user, password string, timeout time.Duration,
) (Session, error) {
	d.dials.Add(1)
	if nil != d.gateC {
		<-d.gateC
	}
	if nil != d.err {
		return nil, d.err
	}
	return d.sess, nil
}

type fakeSession struct {
	files map[string][]byte
	dirs  map[string]bool

	// single in-flight probe
	inFlight atomic.Int32
	overlap  atomic.Bool

	closeCount atomic.Int32
	lastOpened *fakeFile // most recent remote file handle

	// per-read gating for deterministic cancellation tests
	readBeganC chan struct{} // signaled at the top of each remote Read
	readGateC  chan struct{} // each remote Read consumes one token

	// failure injection
	openDirHook func(dirN string) (DirHandle, error)
	statHook    func(pathN string) (os.FileInfo, error)
	failRead    error // every remote Read fails with this
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
	}
}

// flag any concurrent protocol access
func (s *fakeSession) enter() func() {
	if !s.inFlight.CompareAndSwap(0, 1) {
		s.overlap.Store(true)
	}
	return func() { s.inFlight.Store(0) }
}

func (s *fakeSession) OpenDir(dirN string) (DirHandle, error) {
	defer s.enter()()
	if nil != s.openDirHook {
		return s.openDirHook(dirN)
	}
	if !s.dirs[dirN] {
		return nil, fmt.Errorf("no such directory: %s", dirN)
	}
	var names []string
	for f := range s.files {
		if path.Dir(f) == dirN {
			names = append(names, f)
		}
	}
	for d := range s.dirs {
		if d != dirN && path.Dir(d) == dirN {
			names = append(names, d)
		}
	}
	sort.Strings(names) // the fake's "protocol order"
	var infos []os.FileInfo
	for _, n := range names {
		fi, _ := s.stat(n)
		infos = append(infos, fi)
	}
	return &fakeDir{s: s, batches: [][]os.FileInfo{infos}}, nil
}

func (s *fakeSession) Stat(pathN string) (os.FileInfo, error) {
	defer s.enter()()
	if nil != s.statHook {
		return s.statHook(pathN)
	}
	return s.stat(pathN)
}

func (s *fakeSession) stat(pathN string) (os.FileInfo, error) {
	if s.dirs[pathN] {
		return &fakeInfo{name: path.Base(pathN), mode: os.ModeDir | 0755,
			mtime: time.Now(), dir: true}, nil
	}
	if data, ok := s.files[pathN]; ok {
		return &fakeInfo{name: path.Base(pathN), size: int64(len(data)),
			mode: 0644, mtime: time.Now()}, nil
	}
	return nil, fmt.Errorf("no such file: %s", pathN)
}

func (s *fakeSession) Mkdir(pathN string) error {
	defer s.enter()()
	if s.dirs[pathN] {
		return fmt.Errorf("already exists: %s", pathN)
	} else if _, ok := s.files[pathN]; ok {
		return fmt.Errorf("already exists: %s", pathN)
	}
	s.dirs[pathN] = true
	return nil
}

func (s *fakeSession) Rename(oldN, newN string) error {
	defer s.enter()()
	if _, ok := s.files[newN]; ok || s.dirs[newN] {
		return fmt.Errorf("target exists: %s", newN)
	}
	if data, ok := s.files[oldN]; ok {
		delete(s.files, oldN)
		s.files[newN] = data
		return nil
	}
	if s.dirs[oldN] {
		delete(s.dirs, oldN)
		s.dirs[newN] = true
		return nil
	}
	return fmt.Errorf("no such file: %s", oldN)
}

func (s *fakeSession) Remove(pathN string) error {
	defer s.enter()()
	if _, ok := s.files[pathN]; !ok {
		return fmt.Errorf("no such file: %s", pathN)
	}
	delete(s.files, pathN)
	return nil
}

func (s *fakeSession) RemoveDirectory(pathN string) error {
	defer s.enter()()
	if !s.dirs[pathN] {
		return fmt.Errorf("no such directory: %s", pathN)
	}
	for f := range s.files {
		if strings.HasPrefix(f, pathN+"/") {
			return fmt.Errorf("directory not empty: %s", pathN)
		}
	}
	for d := range s.dirs {
		if strings.HasPrefix(d, pathN+"/") {
			return fmt.Errorf("directory not empty: %s", pathN)
		}
	}
	delete(s.dirs, pathN)
	return nil
}

func (s *fakeSession) OpenRead(pathN string) (RemoteFile, error) {
	defer s.enter()()
	data, ok := s.files[pathN]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", pathN)
	}
	f := &fakeFile{s: s, pathN: pathN, rd: bytes.NewReader(data),
		size: int64(len(data))}
	s.lastOpened = f
	return f, nil
}

func (s *fakeSession) OpenWrite(pathN string) (RemoteFile, error) {
	defer s.enter()()
	s.files[pathN] = nil // truncate
	f := &fakeFile{s: s, pathN: pathN, wr: true}
	s.lastOpened = f
	return f, nil
}

func (s *fakeSession) Close() error {
	defer s.enter()()
	s.closeCount.Add(1)
	return nil
}

type fakeInfo struct {
	name  string
	size  int64
	mode  os.FileMode
	mtime time.Time
	dir   bool
}

func (fi *fakeInfo) Name() string       { return fi.name }
func (fi *fakeInfo) Size() int64        { return fi.size }
func (fi *fakeInfo) Mode() os.FileMode  { return fi.mode }
func (fi *fakeInfo) ModTime() time.Time { return fi.mtime }
func (fi *fakeInfo) IsDir() bool        { return fi.dir }
func (fi *fakeInfo) Sys() any           { return nil }

type fakeDir struct {
	s         *fakeSession
	batches   [][]os.FileInfo
	pos       int
	failNext  error // returned once batches are exhausted, instead of EOF
	failClose error
	closed    int
}

func (d *fakeDir) Next() ([]os.FileInfo, error) {
	if d.pos >= len(d.batches) {
		if nil != d.failNext {
			return nil, d.failNext
		}
		return nil, io.EOF
	}
	batch := d.batches[d.pos]
	d.pos++
	return batch, nil
}

func (d *fakeDir) Close() error {
	d.closed++
	return d.failClose
}

type fakeFile struct {
	s     *fakeSession
	pathN string
	rd    *bytes.Reader
	size  int64
	wr    bool

	closed int
}

func (f *fakeFile) Read(p []byte) (int, error) {
	if nil != f.s.readBeganC {
		f.s.readBeganC <- struct{}{}
	}
	if nil != f.s.readGateC {
		<-f.s.readGateC
	}
	defer f.s.enter()()
	if nil != f.s.failRead {
		return 0, f.s.failRead
	}
	return f.rd.Read(p)
}

func (f *fakeFile) Write(p []byte) (int, error) {
	defer f.s.enter()()
	if !f.wr {
		return 0, fmt.Errorf("%s not open for writing", f.pathN)
	}
	f.s.files[f.pathN] = append(f.s.files[f.pathN], p...)
	f.size = int64(len(f.s.files[f.pathN]))
	return len(p), nil
}

func (f *fakeFile) Stat() (os.FileInfo, error) {
	defer f.s.enter()()
	return &fakeInfo{name: path.Base(f.pathN), size: f.size, mode: 0644,
		mtime: time.Now()}, nil
}

func (f *fakeFile) Close() error {
	defer f.s.enter()()
	f.closed++
	return nil
}

// build a connected Connection over the fake
func connectedConn(
	t *testing.T,
	s *fakeSession,
	opts ...Option,
) *Connection {
	t.Helper()
	opts = append(opts, WithDialer(&fakeDialer{sess: s}))
	c, err := NewConnection("testhost", "tester", "secret", opts...)
	require.NoError(t, err)
	require.NoError(t, <-c.Connect())
	t.Cleanup(c.Disconnect)
	return c
}
