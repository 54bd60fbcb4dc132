package grpcutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorCode(t *testing.T) {
	err := status.New(codes.DataLoss, "").Err()

	assert.Equal(t, codes.DataLoss, ErrorCode(err))
	assert.Equal(t, codes.Unknown, ErrorCode(assert.AnError))
	assert.Equal(t, codes.OK, ErrorCode(nil))
}

func TestErrorCode_Context(t *testing.T) {
	err := fmt.Errorf("probe: %w", context.DeadlineExceeded)

	assert.Equal(t, codes.DeadlineExceeded, ErrorCode(err))
	assert.Equal(t, codes.Canceled, ErrorCode(context.Canceled))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(status.Error(codes.NotFound, "unknown service")))
	assert.False(t, IsNotFound(status.Error(codes.Unavailable, "")))
}
