package asftp

import (
	"errors"
	"fmt"
)

// Kind classifies a failure reported by this package.
type Kind int

const (
	KindNone Kind = iota
	KindUnknown
	KindOperationInProgress
	KindInvalidArguments
	KindAlreadyConnected
	KindNotConnected
	KindConnect
	KindSessionInit
	KindHandshake
	KindAuthentication
	KindChannelInit
	KindDirectoryOpen
	KindDirectoryRead
	KindDirectoryClose
	KindFileOpen
	KindFileClose
	KindFileRead
	KindFileWrite
	KindLocalOpenRead
	KindLocalOpenWrite
	KindStat
	KindMakeDirectory
	KindRename
	KindRemoveFile
	KindRemoveDirectory
	KindCancelled
)

var kindNames_ = map[Kind]string{
	KindNone:                "none",
	KindUnknown:             "unknown",
	KindOperationInProgress: "operationInProgress",
	KindInvalidArguments:    "invalidArguments",
	KindAlreadyConnected:    "alreadyConnected",
	KindNotConnected:        "notConnected",
	KindConnect:             "connect",
	KindSessionInit:         "sessionInit",
	KindHandshake:           "handshake",
	KindAuthentication:      "authentication",
	KindChannelInit:         "channelInit",
	KindDirectoryOpen:       "directoryOpen",
	KindDirectoryRead:       "directoryRead",
	KindDirectoryClose:      "directoryClose",
	KindFileOpen:            "fileOpen",
	KindFileClose:           "fileClose",
	KindFileRead:            "fileRead",
	KindFileWrite:           "fileWrite",
	KindLocalOpenRead:       "localOpenForReading",
	KindLocalOpenWrite:      "localOpenForWriting",
	KindStat:                "stat",
	KindMakeDirectory:       "makeDirectory",
	KindRename:              "rename",
	KindRemoveFile:          "removeFile",
	KindRemoveDirectory:     "removeDirectory",
	KindCancelled:           "cancelled",
}

func (k Kind) String() string {
	name, ok := kindNames_[k]
	if !ok {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return name
}

// Error is the structured failure produced by every operation in this
// package.  It carries the Kind plus the underlying cause (if any) for
// diagnostics, and supports errors.Is / errors.As / errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// create an error of kind with no underlying cause
func errOf(kind Kind, format string, args ...any) *Error {
	return chainf(nil, kind, format, args...)
}

// create an error of kind chained from cause, adding additional info
func chainf(cause error, kind Kind, format string, args ...any) *Error {
	msg := format
	if 0 != len(args) {
		msg = fmt.Sprintf(format, args...)
	}
	if nil != cause {
		causeMsg := cause.Error()
		if 0 == len(causeMsg) {
			causeMsg = fmt.Sprintf("%T", cause)
		}
		msg = msg + ", caused by: " + causeMsg
	}
	return &Error{
		Kind:    kind,
		Message: msg,
		Cause:   cause,
	}
}

// KindOf reports the Kind carried by err, searching the causal chain.
// Errors that did not come from this package report KindUnknown.  A nil
// err reports KindNone.
func KindOf(err error) Kind {
	if nil == err {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
