package asftp

import (
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// RemoteFile is one open file on the server.
type RemoteFile interface {
	io.Reader
	io.Writer
	io.Closer
	Stat() (os.FileInfo, error)
}

// DirHandle iterates one open remote directory.
type DirHandle interface {
	// return the next batch of entries, or io.EOF when exhausted
	Next() ([]os.FileInfo, error)
	Close() error
}

// Session is the blocking protocol session a Connection drives.  A
// Session need not be safe for concurrent use - the Connection guarantees
// single threaded access for its whole lifetime.
type Session interface {
	OpenDir(pathN string) (DirHandle, error)
	Stat(pathN string) (os.FileInfo, error)
	Mkdir(pathN string) error
	Rename(oldN, newN string) error
	Remove(pathN string) error
	RemoveDirectory(pathN string) error
	OpenRead(pathN string) (RemoteFile, error)
	OpenWrite(pathN string) (RemoteFile, error)
	Close() error
}

// Dialer establishes the Session for a Connection.  The default dials
// TCP, performs the ssh handshake and password auth, starts an ssh
// session running the sftp subsystem, and initializes the sftp channel -
// in that order, failing each stage with its own error kind.
//
// Provide your own (see WithDialer) to swap the transport, as when
// testing against an in-process fake.
type Dialer interface {
	Dial(host string, port int, user, password string,
		timeout time.Duration) (Session, error)
}

type sshDialer_ struct {
	hostKey ssh.HostKeyCallback
}

func (d *sshDialer_) Dial(
	host string,
	port int,
	user, password string,
	timeout time.Duration,
) (
	sess Session,
	err error,
) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, chainf(err, KindConnect, "dial %s", addr)
	}

	hostKey := d.hostKey
	if nil == hostKey {
		hostKey = ssh.InsecureIgnoreHostKey()
	}
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(nc, addr, cfg)
	if err != nil {
		nc.Close()
		// the ssh lib reports handshake and auth thru one call
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, chainf(err, KindAuthentication, "authenticate %s@%s",
				user, addr)
		}
		return nil, chainf(err, KindHandshake, "ssh handshake with %s", addr)
	}
	cli := ssh.NewClient(sshConn, chans, reqs)

	ch, err := cli.NewSession()
	if err != nil {
		cli.Close()
		return nil, chainf(err, KindSessionInit, "ssh session to %s", addr)
	}
	if err = ch.RequestSubsystem("sftp"); err != nil {
		ch.Close()
		cli.Close()
		return nil, chainf(err, KindSessionInit, "sftp subsystem on %s", addr)
	}
	pw, err := ch.StdinPipe()
	if err != nil {
		ch.Close()
		cli.Close()
		return nil, chainf(err, KindSessionInit, "stdin pipe to %s", addr)
	}
	pr, err := ch.StdoutPipe()
	if err != nil {
		ch.Close()
		cli.Close()
		return nil, chainf(err, KindSessionInit, "stdout pipe from %s", addr)
	}
	c, err := sftp.NewClientPipe(pr, pw)
	if err != nil {
		ch.Close()
		cli.Close()
		return nil, chainf(err, KindChannelInit, "sftp channel to %s", addr)
	}
	return &libSession_{ssh: cli, ch: ch, c: c}, nil
}

// Session over the blocking sftp library
type libSession_ struct {
	ssh *ssh.Client
	ch  *ssh.Session
	c   *sftp.Client
}

func (s *libSession_) OpenDir(dirN string) (DirHandle, error) {
	// the lib exposes no opendir, so page out of one read
	infos, err := s.c.ReadDir(dirN)
	if err != nil {
		return nil, err
	}
	return &dirPager_{infos: infos}, nil
}

func (s *libSession_) Stat(pathN string) (os.FileInfo, error) {
	return s.c.Stat(pathN)
}

func (s *libSession_) Mkdir(pathN string) error {
	return s.c.Mkdir(pathN)
}

func (s *libSession_) Rename(oldN, newN string) error {
	return s.c.Rename(oldN, newN)
}

func (s *libSession_) Remove(pathN string) error {
	return s.c.Remove(pathN)
}

func (s *libSession_) RemoveDirectory(pathN string) error {
	return s.c.RemoveDirectory(pathN)
}

func (s *libSession_) OpenRead(pathN string) (RemoteFile, error) {
	return s.c.Open(pathN)
}

func (s *libSession_) OpenWrite(pathN string) (RemoteFile, error) {
	return s.c.OpenFile(pathN, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

// release channel, session, and socket, each at most once
func (s *libSession_) Close() (err error) {
	if nil != s.c {
		err = s.c.Close()
		s.c = nil
	}
	if nil != s.ch {
		s.ch.Close() // EOF here is normal after channel close
		s.ch = nil
	}
	if nil != s.ssh {
		cerr := s.ssh.Close()
		if nil == err {
			err = cerr
		}
		s.ssh = nil
	}
	if nil != err {
		logrus.WithField("error", err).Debug("session close")
	}
	return
}

const dirPageSize_ = 64

type dirPager_ struct {
	infos []os.FileInfo
	pos   int
}

func (p *dirPager_) Next() ([]os.FileInfo, error) {
	if p.pos >= len(p.infos) {
		return nil, io.EOF
	}
	end := p.pos + dirPageSize_
	if end > len(p.infos) {
		end = len(p.infos)
	}
	batch := p.infos[p.pos:end]
	p.pos = end
	return batch, nil
}

func (p *dirPager_) Close() error { return nil }
