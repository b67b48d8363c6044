package wire

import "errors"

// ErrMalformed marks inbound bytes that do not parse as a ProtocolMessage.
// Per spec.md §7 this is never fatal: the caller logs and drops the
// message, leaving the transport connection open.
var ErrMalformed = errors.New("wire: malformed message")
