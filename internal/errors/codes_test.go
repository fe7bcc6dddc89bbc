package errors_test

import (
	"errors"
	"testing"

	qerrors "github.com/basecamp/federatedkv/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
)

func TestInvalidArgumentWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := qerrors.InvalidArgument("bad request", cause)

	assert.Equal(t, qerrors.CodeInvalidArgument, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "bad request")
	assert.Contains(t, err.Error(), "boom")
}

func TestPeerUnreachableAttachesNodeIDDetail(t *testing.T) {
	err := qerrors.PeerUnreachable("B", errors.New("connection refused"))

	assert.Equal(t, qerrors.CodePeerUnreachable, err.Code)
	assert.Equal(t, "B", err.Details["node_id"])
}

func TestToGRPCStatusMapsCodes(t *testing.T) {
	cases := []struct {
		code qerrors.Code
		want grpccodes.Code
	}{
		{qerrors.CodeInvalidArgument, grpccodes.InvalidArgument},
		{qerrors.CodeNotPortal, grpccodes.FailedPrecondition},
		{qerrors.CodePeerUnreachable, grpccodes.Unavailable},
		{qerrors.CodeFanOutTimeout, grpccodes.DeadlineExceeded},
		{qerrors.CodeInternal, grpccodes.Internal},
	}

	for _, tc := range cases {
		err := qerrors.New(tc.code, "some failure", nil)
		st := err.ToGRPCStatus()
		assert.Equal(t, tc.want, st.Code())
	}
}

func TestToGRPCStatusAttachesDetailsStruct(t *testing.T) {
	err := qerrors.PeerUnreachable("C", nil)
	st := err.ToGRPCStatus()

	require.Len(t, st.Details(), 1)
}

func TestIsQueryError(t *testing.T) {
	assert.True(t, qerrors.IsQueryError(qerrors.NotPortal()))
	assert.False(t, qerrors.IsQueryError(errors.New("plain error")))
}
