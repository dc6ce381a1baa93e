package connerrors_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/illmade-knight/go-connectivity/pkg/connerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors_AsDispatch(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := fmt.Errorf("pre-check failed: %w", &connerrors.ConnectionFailed{
		HostPort:    "svc:80",
		Description: "firewall may be blocking the connection",
		Cause:       cause,
	})

	var cf *connerrors.ConnectionFailed
	require.True(t, errors.As(wrapped, &cf))
	assert.Equal(t, "svc:80", cf.HostPort)
	assert.ErrorIs(t, wrapped, cause)
}

func TestSignalInIllegalState_Message(t *testing.T) {
	err := &connerrors.SignalInIllegalState{Operation: "connected", Timeout: 10 * time.Second}
	assert.Contains(t, err.Error(), "connected")
	assert.Contains(t, err.Error(), "10s")
}
