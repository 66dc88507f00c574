// pkg/endpoint/errors.go
package endpoint

import "fmt"

// BindError reports a listen port that could not be bound (in use,
// privileged without permission). Surfaced at Start, never retried.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string { return fmt.Sprintf("bind port %d: %v", e.Port, e.Err) }
func (e *BindError) Unwrap() error { return e.Err }

// AlreadyRunningError reports a double Start on one endpoint.
type AlreadyRunningError struct {
	Func string
	Port int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("endpoint %q already running on port %d", e.Func, e.Port)
}

// ValidationError reports invocation input outside the endpoint's accepted
// type contract. Synchronous to the Invoke caller; the endpoint stays up.
type ValidationError struct {
	Func   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input for %q: %s", e.Func, e.Reason)
}

// RemoteInvocationError reports a transport-level failure calling a stage
// service: connection refused, deadline exceeded, serialization failure.
type RemoteInvocationError struct {
	Func   string
	Target string
	Err    error
}

func (e *RemoteInvocationError) Error() string {
	return fmt.Sprintf("remote invocation of %q at %s: %v", e.Func, e.Target, e.Err)
}

func (e *RemoteInvocationError) Unwrap() error { return e.Err }
