package moodle

import (
	"fmt"

	"github.com/pkg/errors"
)

// EntityKind names the kind of Moodle entity a lookup was made for.
type EntityKind string

const (
	KindCourse     EntityKind = "course"
	KindAssignment EntityKind = "assignment"
	KindUser       EntityKind = "user"
)

// invalidTokenCode is the errorcode Moodle answers with when wstoken is rejected.
const invalidTokenCode = "invalidtoken"

type (
	// TransportError reports a failed exchange with the server: connection, timeout, HTTP status
	// or a body that is not JSON at all.
	TransportError struct {
		Op  string
		Err error
	}

	// DecodeError reports a JSON body that does not have the shape expected for Op.
	DecodeError struct {
		Op  string
		Err error
	}

	// AuthenticationError carries the server's message verbatim.
	AuthenticationError struct {
		Message string
	}

	// NotFoundError reports that no returned entity matched the requested id.
	NotFoundError struct {
		Kind EntityKind
		ID   int
	}

	// RemoteError is a Moodle web-service exception ({"exception", "errorcode", "message"}).
	RemoteError struct {
		Exception string
		ErrorCode string
		Message   string
	}
)

func (e *TransportError) Error() string { return fmt.Sprintf("moodle: %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

func (e *DecodeError) Error() string { return fmt.Sprintf("moodle: decoding %s: %v", e.Op, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

func (e *AuthenticationError) Error() string { return "moodle: login failed: " + e.Message }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("moodle: %s (id: %d) not found", e.Kind, e.ID)
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("moodle: %s (%s): %s", e.Exception, e.ErrorCode, e.Message)
}

func notFound(kind EntityKind, id int) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether err is a NotFoundError for an entity of the given kind.
func IsNotFound(err error, kind EntityKind) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr) && nfErr.Kind == kind
}

func IsAuthenticationError(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

func IsDecodeError(err error) bool {
	var dErr *DecodeError
	return errors.As(err, &dErr)
}
