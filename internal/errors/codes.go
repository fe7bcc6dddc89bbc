// Package errors defines the structured error taxonomy shared by
// validation and the RPC layer. Every application-level failure is
// folded into an in-band success=false / error-message reply;
// ToGRPCStatus exists only for the rare case of a transport-level
// problem that precedes application logic entirely (e.g. a request
// that cannot even be decoded).
package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Code classifies a QueryError for metrics and gRPC status mapping.
type Code int

const (
	CodeOK Code = 0

	CodeInvalidArgument Code = 1000
	CodeNotPortal       Code = 1001
	CodeDecodeFailed    Code = 1002

	CodeInternal        Code = 2000
	CodeStoreFailed     Code = 2001
	CodePeerUnreachable Code = 2002
	CodeFanOutTimeout   Code = 2003
)

// QueryError is a structured error carrying enough context to build
// both the in-band error-message and, rarely, a gRPC status.
type QueryError struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *QueryError) Unwrap() error { return e.Cause }

// New constructs a QueryError.
func New(code Code, message string, cause error) *QueryError {
	return &QueryError{Code: code, Message: message, Cause: cause}
}

// WithDetail attaches one piece of structured context to the error.
func (e *QueryError) WithDetail(key string, value any) *QueryError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// ToGRPCStatus maps a QueryError to a *status.Status, attaching Details
// as a structpb.Struct when present. This is used only at the narrow
// transport-failure boundary described in the package doc; application
// errors never leave an RPC handler through this path.
func (e *QueryError) ToGRPCStatus() *status.Status {
	st := status.New(e.toGRPCCode(), e.Error())
	if len(e.Details) == 0 {
		return st
	}
	detail, err := structpb.NewStruct(e.Details)
	if err != nil {
		return st
	}
	withDetails, err := st.WithDetails(detail)
	if err != nil {
		return st
	}
	return withDetails
}

func (e *QueryError) toGRPCCode() codes.Code {
	switch e.Code {
	case CodeOK:
		return codes.OK
	case CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeNotPortal:
		return codes.FailedPrecondition
	case CodeDecodeFailed:
		return codes.InvalidArgument
	case CodePeerUnreachable:
		return codes.Unavailable
	case CodeFanOutTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// Convenience constructors, one per Code.

func InvalidArgument(message string, cause error) *QueryError {
	return New(CodeInvalidArgument, message, cause)
}

func NotPortal() *QueryError {
	return New(CodeNotPortal, "This node is not the portal", nil)
}

func DecodeFailed(message string, cause error) *QueryError {
	return New(CodeDecodeFailed, message, cause)
}

func Internal(message string, cause error) *QueryError {
	return New(CodeInternal, message, cause)
}

func StoreFailed(message string, cause error) *QueryError {
	return New(CodeStoreFailed, message, cause)
}

func PeerUnreachable(nodeID string, cause error) *QueryError {
	return New(CodePeerUnreachable, fmt.Sprintf("peer %s unreachable", nodeID), cause).
		WithDetail("node_id", nodeID)
}

// IsQueryError reports whether err is a *QueryError.
func IsQueryError(err error) bool {
	_, ok := err.(*QueryError)
	return ok
}
