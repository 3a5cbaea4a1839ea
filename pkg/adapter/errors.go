package adapter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConnected is returned by Send before Connect or after
// Disconnect.
var ErrNotConnected = errors.New("adapter: not connected")

// ErrTimeout marks a single command that got no prompt within its wait
// window. It does not imply the connection is lost.
var ErrTimeout = errors.New("adapter: command timeout")

// ConnectionError wraps a failure to open the channel or to complete
// the initialization handshake. Fatal to the connect attempt.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("adapter: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is an explicit error token in the adapter's reply.
// Local to the command that triggered it.
type ProtocolError struct {
	Token    string
	Response string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("adapter: %s", e.Token)
}

var errorTokens = []string{
	"UNABLE TO CONNECT",
	"CAN ERROR",
	"BUS BUSY",
	"BUS ERROR",
	"NO DATA",
	"DATA ERROR",
	"STOPPED",
	"ERROR",
	"?",
}

// errorToken reports the first adapter error token present in a
// cleaned response, or "".
func errorToken(resp string) string {
	up := strings.ToUpper(resp)
	for _, tok := range errorTokens {
		if strings.Contains(up, tok) {
			return tok
		}
	}
	return ""
}
