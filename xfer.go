package asftp

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProgressFunc receives coalesced transfer progress on the delivery
// goroutine.  Return false to cancel at the next chunk boundary.
// Intermediate calls may be dropped under load - only the final call is
// guaranteed, and it reports the true final byte count.
type ProgressFunc func(bytesDone, bytesTotal uint64) (keepGoing bool)

// TransferResult describes one completed transfer.
type TransferResult struct {
	File   *FileMetadata
	Start  time.Time
	Finish time.Time
}

type direction_ uint8

const (
	download_ direction_ = iota
	upload_
)

func (d direction_) String() string {
	if download_ == d {
		return "download"
	}
	return "upload"
}

// transfer_ lives for the duration of one transfer call
type transfer_ struct {
	id      string
	dir     direction_
	remoteN string
	localN  string
	total   uint64 // fixed at start from a stat
	done    uint64 // worker context only; never decreases
	cancel  atomic.Bool
	start   time.Time
	finish  time.Time
}

// Download copies remoteN to the local file localN, resolving with the
// remote file's metadata plus start/finish timestamps.  progress may be
// nil.  Both file handles are released on every exit path.
func (c *Connection) Download(
	remoteN, localN string,
	progress ProgressFunc,
) <-chan AsyncResult[*TransferResult] {
	if 0 == len(remoteN) || 0 == len(localN) {
		return reject[*TransferResult](KindInvalidArguments, "download: empty path")
	}
	return c.transfer(download_, remoteN, localN, progress)
}

// Upload copies the local file localN to remoteN, with the identical
// progress, cancellation, and completion contract as Download.
func (c *Connection) Upload(
	remoteN, localN string,
	progress ProgressFunc,
) <-chan AsyncResult[*TransferResult] {
	if 0 == len(remoteN) || 0 == len(localN) {
		return reject[*TransferResult](KindInvalidArguments, "upload: empty path")
	}
	return c.transfer(upload_, remoteN, localN, progress)
}

// CancelTransfer requests the active transfer stop at its next chunk
// boundary.  No-op when no transfer is active.
func (c *Connection) CancelTransfer() {
	c.mu.Lock()
	x := c.xfer
	c.mu.Unlock()
	if nil != x {
		x.cancel.Store(true)
	}
}

func (c *Connection) transfer(
	dir direction_,
	remoteN, localN string,
	progress ProgressFunc,
) <-chan AsyncResult[*TransferResult] {

	resC := make(chan AsyncResult[*TransferResult], 1)
	e, sess, err := c.admit(dir.String())
	if err != nil {
		resC <- AsyncResult[*TransferResult]{Err: err}
		return resC
	}
	x := &transfer_{
		id:      uuid.New().String(),
		dir:     dir,
		remoteN: remoteN,
		localN:  localN,
	}
	c.mu.Lock()
	c.xfer = x
	c.mu.Unlock()

	ok := e.submit(func() {
		log := logrus.WithFields(logrus.Fields{
			"host":     c.host,
			"transfer": x.id,
			"dir":      dir.String(),
			"remote":   remoteN,
			"local":    localN,
		})
		c.mu.Lock()
		disconnecting := stateConnected != c.state
		c.mu.Unlock()
		if disconnecting { // Disconnect raced in after admission
			c.release()
			e.post(func() {
				resC <- AsyncResult[*TransferResult]{
					Err: errOf(KindCancelled, "%s of %s cancelled",
						dir.String(), remoteN),
				}
			})
			return
		}
		log.Debug("transfer begin")
		var res *TransferResult
		var err error
		if download_ == dir {
			res, err = c.download(sess, e, x, progress)
		} else {
			res, err = c.upload(sess, e, x, progress)
		}
		if err != nil {
			log.WithField("error", err).Debug("transfer failed")
		} else {
			log.WithFields(logrus.Fields{
				"bytes":   x.done,
				"elapsed": x.finish.Sub(x.start).String(),
			}).Info("transfer complete")
		}
		c.release()
		e.post(func() {
			resC <- AsyncResult[*TransferResult]{V: res, Err: err}
		})
	})
	if !ok {
		c.release()
		resC <- AsyncResult[*TransferResult]{
			Err: errOf(KindNotConnected, "%s: connection closed", dir.String()),
		}
	}
	return resC
}

func (c *Connection) download(
	s Session,
	e *epoch_,
	x *transfer_,
	progress ProgressFunc,
) (
	res *TransferResult,
	err error,
) {
	x.start = time.Now()

	rf, err := s.OpenRead(x.remoteN)
	if err != nil {
		return nil, chainf(err, KindFileOpen, "open remote %s", x.remoteN)
	}
	fi, err := rf.Stat()
	if err != nil {
		rf.Close()
		return nil, chainf(err, KindStat, "stat remote %s", x.remoteN)
	}
	x.total = uint64(fi.Size())
	meta := metadataOf(x.remoteN, fi)

	lf, err := os.OpenFile(x.localN, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		rf.Close()
		return nil, chainf(err, KindLocalOpenWrite,
			"open local %s for writing", x.localN)
	}

	err = c.pump(e, x, rf, lf, progress)

	rerr := rf.Close()
	lerr := lf.Close()
	if err != nil {
		return nil, err // close failures never mask the primary cause
	} else if nil != lerr {
		return nil, chainf(lerr, KindFileClose, "close local %s", x.localN)
	} else if nil != rerr {
		return nil, chainf(rerr, KindFileClose, "close remote %s", x.remoteN)
	}
	x.finish = time.Now()
	return &TransferResult{File: meta, Start: x.start, Finish: x.finish}, nil
}

func (c *Connection) upload(
	s Session,
	e *epoch_,
	x *transfer_,
	progress ProgressFunc,
) (
	res *TransferResult,
	err error,
) {
	x.start = time.Now()

	lf, err := os.Open(x.localN)
	if err != nil {
		return nil, chainf(err, KindLocalOpenRead,
			"open local %s for reading", x.localN)
	}
	fi, err := lf.Stat()
	if err != nil {
		lf.Close()
		return nil, chainf(err, KindStat, "stat local %s", x.localN)
	}
	x.total = uint64(fi.Size())

	rf, err := s.OpenWrite(x.remoteN)
	if err != nil {
		lf.Close()
		return nil, chainf(err, KindFileOpen, "open remote %s", x.remoteN)
	}

	err = c.pump(e, x, lf, rf, progress)

	rerr := rf.Close()
	lf.Close() // read only
	if err != nil {
		return nil, err
	} else if nil != rerr {
		return nil, chainf(rerr, KindFileClose, "close remote %s", x.remoteN)
	}

	rfi, err := s.Stat(x.remoteN)
	if err != nil {
		return nil, chainf(err, KindStat, "stat uploaded %s", x.remoteN)
	}
	x.finish = time.Now()
	return &TransferResult{
		File:   metadataOf(x.remoteN, rfi),
		Start:  x.start,
		Finish: x.finish,
	}, nil
}

// the chunk loop shared by both directions.  the caller owns both handles
// and closes them after the loop, on every path.
func (c *Connection) pump(
	e *epoch_,
	x *transfer_,
	src io.Reader,
	dst io.Writer,
	progress ProgressFunc,
) error {

	gate := newProgressGate(c.progressEvery)
	buff := make([]byte, c.chunkSize)
	for {
		// cooperative cancellation, observed at chunk boundaries only
		if x.cancel.Load() {
			return errOf(KindCancelled, "%s of %s cancelled",
				x.dir.String(), x.remoteN)
		}
		n, rerr := src.Read(buff)
		if 0 < n {
			if _, werr := dst.Write(buff[:n]); werr != nil {
				return chainf(werr, KindFileWrite, "write %d bytes of %s",
					n, x.remoteN)
			}
			x.done += uint64(n)
			if nil != progress && x.done < x.total && gate.allow() {
				done := x.done
				e.tryPost(func() { // drop rather than backpressure the loop
					if !progress(done, x.total) {
						x.cancel.Store(true)
					}
				})
			}
		}
		if rerr != nil {
			if io.EOF == rerr {
				break
			}
			return chainf(rerr, KindFileRead, "read %s", x.remoteN)
		}
	}

	// the final update always goes out, with the true final count
	if nil != progress {
		done := x.done
		e.post(func() {
			progress(done, x.total)
		})
	}
	return nil
}
