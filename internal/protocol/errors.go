package protocol

import "errors"

// ErrMalformed is wrapped when a client message fails to decode or fails
// structural validation — maps to error{kind=protocol_error}.
var ErrMalformed = errors.New("protocol: malformed message")

// ErrUnknownType is wrapped when a message's "type" discriminator doesn't
// match any known client message — maps to error{kind=protocol_error}.
var ErrUnknownType = errors.New("protocol: unknown message type")
