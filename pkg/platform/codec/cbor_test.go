package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_MapOrderIndependent(t *testing.T) {
	a := map[string]string{"reason": "missing_permission", "action": "content.delete", "ip": "10.0.0.1"}
	b := map[string]string{"ip": "10.0.0.1", "action": "content.delete", "reason": "missing_permission"}

	for range 20 {
		encA, err := Marshal(a)
		require.NoError(t, err)
		encB, err := Marshal(b)
		require.NoError(t, err)
		assert.Equal(t, encA, encB)
	}
}

func TestUnmarshal_AnyTargetsUseStringKeys(t *testing.T) {
	enc, err := Marshal(map[string]any{"count": 3, "key": "user:login"})
	require.NoError(t, err)

	var out any
	require.NoError(t, Unmarshal(enc, &out))
	m, ok := out.(map[string]any)
	require.True(t, ok, "expected map[string]any, got %T", out)
	assert.Equal(t, "user:login", m["key"])
}
