package edk

import "strconv"

// Result is the outcome of an operation on a handle.
type Result int

// Results.
const (
	ResultOK Result = iota
	ResultCancelled
	ResultUnknown
	ResultInvalidArgument
	ResultDeadlineExceeded
	ResultNotFound
	ResultAlreadyExists
	ResultPermissionDenied
	ResultResourceExhausted
	ResultFailedPrecondition
	ResultAborted
	ResultOutOfRange
	ResultUnimplemented
	ResultInternal
	ResultUnavailable
	ResultDataLoss
	ResultBusy
	ResultShouldWait
)

var resultNames = [...]string{
	ResultOK:                 "ok",
	ResultCancelled:          "cancelled",
	ResultUnknown:            "unknown",
	ResultInvalidArgument:    "invalid argument",
	ResultDeadlineExceeded:   "deadline exceeded",
	ResultNotFound:           "not found",
	ResultAlreadyExists:      "already exists",
	ResultPermissionDenied:   "permission denied",
	ResultResourceExhausted:  "resource exhausted",
	ResultFailedPrecondition: "failed precondition",
	ResultAborted:            "aborted",
	ResultOutOfRange:         "out of range",
	ResultUnimplemented:      "unimplemented",
	ResultInternal:           "internal",
	ResultUnavailable:        "unavailable",
	ResultDataLoss:           "data loss",
	ResultBusy:               "busy",
	ResultShouldWait:         "should wait",
}

func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "result(" + strconv.Itoa(int(r)) + ")"
}

// Error makes it possible to return result as an error.
func (r Result) Error() string {
	return r.String()
}

// HandleSignals is the set of signals of a handle.
type HandleSignals uint32

// Signals.
const (
	HandleSignalNone       HandleSignals = 0
	HandleSignalReadable   HandleSignals = 1 << 0
	HandleSignalWritable   HandleSignals = 1 << 1
	HandleSignalPeerClosed HandleSignals = 1 << 2
)

// HandleSignalsState is the state of handle signals.
type HandleSignalsState struct {
	Satisfied   HandleSignals
	Satisfiable HandleSignals
}

// Satisfies tells if any of the signals is satisfied.
func (s HandleSignalsState) Satisfies(signals HandleSignals) bool {
	return s.Satisfied&signals != 0
}

// CanSatisfy tells if any of the signals may ever be satisfied.
func (s HandleSignalsState) CanSatisfy(signals HandleSignals) bool {
	return s.Satisfiable&signals != 0
}

// WriteMessageFlags are the flags of WriteMessage.
type WriteMessageFlags uint32

// Write flags.
const (
	WriteMessageFlagNone WriteMessageFlags = 0
)

// ReadMessageFlags are the flags of ReadMessage.
type ReadMessageFlags uint32

// Read flags.
const (
	ReadMessageFlagNone ReadMessageFlags = 0

	// ReadMessageFlagMayDiscard discards the message which does not fit into the buffer.
	ReadMessageFlagMayDiscard ReadMessageFlags = 1 << 0
)
