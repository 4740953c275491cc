package cache

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func writePayload(t *testing.T, path string, p Payload) {
	t.Helper()
	data, err := msgpack.Marshal(&p)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
