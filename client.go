package asftp

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

const (
	DefaultPort             = 22
	DefaultTimeout          = 15 * time.Second
	DefaultChunkSize        = 1 << 15 // 32KiB, min all sftp servers support
	DefaultProgressInterval = 100 * time.Millisecond
)

type connState_ int

const (
	stateDisconnected connState_ = iota
	stateConnecting
	stateConnected
	stateDisconnecting
)

// An Option is a function which applies configuration to a Connection.
type Option func(*Connection) error

// Set the server port.  The default is 22.
func WithPort(port int) Option {
	return func(c *Connection) error {
		if 0 >= port || 65535 < port {
			return errOf(KindInvalidArguments, "port out of range: %d", port)
		}
		c.port = port
		return nil
	}
}

// Limit the time allowed for the tcp dial and ssh handshake.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Connection) error {
		if 0 >= timeout {
			return errOf(KindInvalidArguments, "timeout must be positive")
		}
		c.timeout = timeout
		return nil
	}
}

// Set the transfer chunk size (bytes).  The larger the chunk, the more
// efficient the transport, and the coarser cancellation gets.
func WithChunkSize(size int) Option {
	return func(c *Connection) error {
		if 512 > size {
			return errOf(KindInvalidArguments,
				"chunk size must be at least 512, got %d", size)
		}
		c.chunkSize = size
		return nil
	}
}

// Limit the delivery rate of intermediate progress updates.  Zero
// delivers every chunk.  The default is 100ms.
func WithProgressInterval(interval time.Duration) Option {
	return func(c *Connection) error {
		if 0 > interval {
			return errOf(KindInvalidArguments, "interval must not be negative")
		}
		c.progressEvery = interval
		return nil
	}
}

// Verify the server host key.  The default accepts any host key, as
// interactive sftp tools commonly do on first contact.
func WithHostKeyCallback(cb ssh.HostKeyCallback) Option {
	return func(c *Connection) error {
		c.hostKey = cb
		return nil
	}
}

// Replace the session transport.  Useful for tests and for tunneled
// transports.
func WithDialer(d Dialer) Option {
	return func(c *Connection) error {
		if nil == d {
			return errOf(KindInvalidArguments, "nil dialer")
		}
		c.dialer = d
		return nil
	}
}

// Connection is an asynchronous client for one SFTP endpoint.
//
// All operations resolve exactly once on their returned chan, and at most
// one operation is in flight at a time - a second concurrent request
// fails immediately with KindOperationInProgress rather than queueing.
// Callers needing ordering must serialize themselves.
type Connection struct {
	host     string
	port     int
	user     string
	password string

	timeout       time.Duration
	chunkSize     int
	progressEvery time.Duration
	hostKey       ssh.HostKeyCallback
	dialer        Dialer

	mu    sync.Mutex
	state connState_
	busy  bool
	sess  Session    // exclusively owned; non-nil only while connected
	epoch *epoch_    // worker + delivery goroutines; nil while disconnected
	xfer  *transfer_ // active transfer, if any
}

// Create a Connection to user@host.  No i/o happens until Connect.
func NewConnection(host, user, password string, opts ...Option) (*Connection, error) {
	if 0 == len(host) {
		return nil, errOf(KindInvalidArguments, "empty hostname")
	} else if 0 == len(user) {
		return nil, errOf(KindInvalidArguments, "empty username")
	}
	c := &Connection{
		host:          host,
		port:          DefaultPort,
		user:          user,
		password:      password,
		timeout:       DefaultTimeout,
		chunkSize:     DefaultChunkSize,
		progressEvery: DefaultProgressInterval,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Connect establishes the session: tcp dial, ssh handshake, password
// auth, ssh session + sftp subsystem, sftp channel init - in that order.
// The chan receives nil on success or the first stage's failure, after
// any partially built state has been torn down.
func (c *Connection) Connect() <-chan error {
	resC := make(chan error, 1)

	c.mu.Lock()
	if stateDisconnected != c.state {
		c.mu.Unlock()
		resC <- errOf(KindAlreadyConnected, "already connected to %s", c.host)
		return resC
	}
	c.state = stateConnecting
	e := newEpoch()
	c.epoch = e
	d := c.dialer
	if nil == d {
		d = &sshDialer_{hostKey: c.hostKey}
	}
	c.mu.Unlock()

	go c.work(e)
	go c.deliverLoop(e)

	e.submit(func() {
		sess, err := d.Dial(c.host, c.port, c.user, c.password, c.timeout)
		c.mu.Lock()
		if err != nil {
			c.state = stateDisconnected
			c.epoch = nil
			c.mu.Unlock()
			e.close()
			logrus.WithFields(logrus.Fields{
				"host":  c.host,
				"port":  c.port,
				"error": err,
			}).Warn("connect failed")
		} else {
			c.sess = sess
			if stateConnecting == c.state { // a disconnect may already be queued
				c.state = stateConnected
			}
			c.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"host": c.host,
				"port": c.port,
				"user": c.user,
			}).Info("connected")
		}
		e.post(func() { resC <- err })
	})
	return resC
}

// Disconnect releases the session and returns once the connection has
// quiesced.  It is idempotent and safe from any state; an active
// transfer is asked to cancel first, and teardown waits behind it.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if stateDisconnected == c.state || stateDisconnecting == c.state {
		c.mu.Unlock()
		return
	}
	c.state = stateDisconnecting
	if nil != c.xfer {
		c.xfer.cancel.Store(true)
	}
	e := c.epoch
	c.mu.Unlock()

	doneC := make(chan struct{})
	ok := e.submit(func() {
		c.mu.Lock()
		if c.epoch != e { // a newer epoch took over after a failed connect
			c.mu.Unlock()
			e.close()
			close(doneC)
			return
		}
		sess := c.sess
		c.sess = nil
		c.state = stateDisconnected
		c.epoch = nil
		c.mu.Unlock()
		if nil != sess {
			if err := sess.Close(); err != nil {
				logrus.WithFields(logrus.Fields{
					"host":  c.host,
					"error": err,
				}).Warn("session teardown")
			}
		}
		e.close()
		close(doneC)
	})
	if !ok { // lost a race with a failed connect, which already tore down
		c.mu.Lock()
		if stateDisconnecting == c.state {
			c.state = stateDisconnected
			c.epoch = nil
		}
		c.mu.Unlock()
		return
	}
	<-doneC
	logrus.WithField("host", c.host).Info("disconnected")
}

// IsConnected reports a point in time snapshot of the connection state.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return stateConnected == c.state
}
