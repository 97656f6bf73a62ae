package rpc

import "fmt"

// RemoteError means the tool call was rejected: the transport or protocol
// failed, or the server answered with an error result.
type RemoteError struct {
	Tool    string
	Message string // text of an error result, if the server sent one
	Err     error  // protocol or transport failure, if any
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("tool %s returned an error: %s", e.Tool, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// DecodeError means the response could not be interpreted.
type DecodeError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot decode %s response: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot decode %s response: %s", e.Tool, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
