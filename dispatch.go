package asftp

import (
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// AsyncResult carries the outcome of one async call: either V or Err.
// Exactly one is delivered per call.
type AsyncResult[T any] struct {
	V   T
	Err error
}

// epoch_ is one connected lifetime of a Connection: a worker goroutine
// that alone touches the Session, and a delivery goroutine that alone
// runs consumer callbacks and result sends.  Both end when workC closes.
type epoch_ struct {
	workC    chan func()
	deliverC chan func()
	closed   atomic.Bool
}

func newEpoch() *epoch_ {
	return &epoch_{
		workC:    make(chan func(), 4),
		deliverC: make(chan func(), 8),
	}
}

// stop accepting work.  only the first caller closes.
func (e *epoch_) close() (closedNow bool) {
	if e.closed.CompareAndSwap(false, true) {
		close(e.workC)
		return true
	}
	return false
}

// hand one unit of work to the worker goroutine.
// false if the epoch already shut down.
func (e *epoch_) submit(f func()) (ok bool) {
	if e.closed.Load() {
		return
	}
	defer func() {
		// losing a race with close is not an error
		if r := recover(); nil != r {
			rerr, isErr := r.(error)
			if !isErr || !strings.Contains(rerr.Error(), "closed channel") {
				panic(r)
			}
			ok = false
		}
	}()
	e.workC <- f
	return true
}

// run f on the delivery goroutine.  worker context only, prior to close.
func (e *epoch_) post(f func()) {
	e.deliverC <- f
}

// post unless the delivery goroutine is backed up
func (e *epoch_) tryPost(f func()) (ok bool) {
	select {
	case e.deliverC <- f:
		ok = true
	default:
	}
	return
}

// the worker goroutine: all blocking protocol i/o happens here
func (c *Connection) work(e *epoch_) {
	defer close(e.deliverC)
	for f := range e.workC {
		f()
	}
}

// the delivery goroutine: all results and callbacks happen here, so
// consumers never run while the worker holds protocol state mid call
func (c *Connection) deliverLoop(e *epoch_) {
	for f := range e.deliverC {
		f()
	}
}

// gate one request in, or fail per the single in flight rule
func (c *Connection) admit(name string) (*epoch_, Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stateConnected != c.state {
		return nil, nil, errOf(KindNotConnected, "%s: not connected", name)
	} else if c.busy {
		return nil, nil, errOf(KindOperationInProgress,
			"%s: another operation is in flight", name)
	}
	c.busy = true
	return c.epoch, c.sess, nil
}

func (c *Connection) release() {
	c.mu.Lock()
	c.busy = false
	c.xfer = nil
	c.mu.Unlock()
}

// run op on the worker, delivering the result once on the delivery
// goroutine.  rejections resolve immediately on the caller context.
func invoke[T any](
	c *Connection,
	name string,
	op func(s Session) (T, error),
) <-chan AsyncResult[T] {

	resC := make(chan AsyncResult[T], 1)
	e, sess, err := c.admit(name)
	if err != nil {
		resC <- AsyncResult[T]{Err: err}
		return resC
	}
	ok := e.submit(func() {
		logrus.WithFields(logrus.Fields{
			"host": c.host,
			"op":   name,
		}).Debug("op begin")
		v, err := op(sess)
		c.release()
		e.post(func() {
			resC <- AsyncResult[T]{V: v, Err: err}
		})
	})
	if !ok { // connection torn down since admission
		c.release()
		resC <- AsyncResult[T]{Err: errOf(KindNotConnected, "%s: connection closed", name)}
	}
	return resC
}

// as invoke, for ops with no payload
func invokeErr(
	c *Connection,
	name string,
	op func(s Session) error,
) <-chan error {

	resC := make(chan error, 1)
	e, sess, err := c.admit(name)
	if err != nil {
		resC <- err
		return resC
	}
	ok := e.submit(func() {
		logrus.WithFields(logrus.Fields{
			"host": c.host,
			"op":   name,
		}).Debug("op begin")
		err := op(sess)
		c.release()
		e.post(func() {
			resC <- err
		})
	})
	if !ok {
		c.release()
		resC <- errOf(KindNotConnected, "%s: connection closed", name)
	}
	return resC
}

// resolve immediately with a failure, bypassing admission
func reject[T any](kind Kind, format string, args ...any) <-chan AsyncResult[T] {
	resC := make(chan AsyncResult[T], 1)
	resC <- AsyncResult[T]{Err: errOf(kind, format, args...)}
	return resC
}

func rejectErr(kind Kind, format string, args ...any) <-chan error {
	resC := make(chan error, 1)
	resC <- errOf(kind, format, args...)
	return resC
}
