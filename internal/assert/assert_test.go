package assert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAssertions(t *testing.T) {
	require.Panics(t, func() { NotNil(nil) })
	require.NotPanics(t, func() { NotNil(1) })
	require.Panics(t, func() { NotEmptyStr("") })
	require.NotPanics(t, func() { NotEmptyStr("a") })
	require.Panics(t, func() { PositiveDuration(0) })
	require.NotPanics(t, func() { PositiveDuration(time.Millisecond) })
	require.Panics(t, func() { PositiveInt(-1) })
	require.NotPanics(t, func() { PositiveInt(3) })
}
