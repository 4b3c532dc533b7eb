package chatbot

import "fmt"

//ErrorKind is the stage of a stream at which a StreamError happened
type ErrorKind int

//ErrorKinds
const (
	//ErrorKindOpen is a failure setting up the request: transport error, non-success status or no body
	ErrorKindOpen ErrorKind = iota
	//ErrorKindRead is a failure reading an open stream
	ErrorKindRead
)

//StreamError wraps terminal stream errors
type StreamError struct {
	Kind        ErrorKind
	Status      int //HTTP status for ErrorKindOpen, if a response was received
	Description string
	Err         error
}

func (e *StreamError) Error() string {
	if e.Kind == ErrorKindOpen {
		return fmt.Sprintf("Open Error: %s: %v", e.Description, e.Err)
	}
	return fmt.Sprintf("Read Error: %s: %v", e.Description, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

//Reason returns the text shown to the user for the error
func (e *StreamError) Reason() string {
	if e.Err == nil {
		return e.Description
	}
	return e.Err.Error()
}

//errorReason returns the user-facing reason for any error
func errorReason(err error) string {
	if e, ok := err.(*StreamError); ok {
		return e.Reason()
	}
	if err == nil {
		return "An unexpected error occurred"
	}
	return err.Error()
}
