package errors

import (
	"errors"
)

var (
	ErrFailedToReadConfig  = errors.New("failed to read config file")
	ErrFailedToParseConfig = errors.New("failed to parse config file")
	ErrInvalidConfig       = errors.New("invalid configuration")

	ErrMalformedEnvelope = errors.New("malformed log envelope")
	ErrUnknownLevel      = errors.New("unknown log level")

	ErrStoreUnavailable = errors.New("log store unavailable")
	ErrStoreCorrupt     = errors.New("log store corrupt")
	ErrQuotaExceeded    = errors.New("log store quota exceeded")
	ErrDuplicateLog     = errors.New("duplicate log id")

	ErrFailedToListen        = errors.New("failed to listen on ingress address")
	ErrFailedToCleanupSocket = errors.New("failed to cleanup stale socket")
	ErrFailedToListenSocket  = errors.New("failed to listen on socket")
	ErrSocketAlreadyInUse    = errors.New("socket already in use")
	ErrFailedToConnectSocket = errors.New("failed to connect to socket")
	ErrFailedToMarshalFrame  = errors.New("failed to marshal frame")
	ErrFailedToWriteSocket   = errors.New("failed to write to socket")
	ErrFailedToReadSocket    = errors.New("failed to read from socket")
	ErrSocketSearchFailed    = errors.New("failed to search for sockets")
	ErrNoInstanceRunning     = errors.New("no running xray instance found")
	ErrInstanceNotFound      = errors.New("no running instance for feed")
	ErrMultipleFeedsRunning  = errors.New("multiple instances running")
)

var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)
