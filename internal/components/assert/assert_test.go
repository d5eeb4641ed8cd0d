package assert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type store interface{ Get() string }

type fileStore struct{}

func (*fileStore) Get() string { return "" }

func TestNotNil(t *testing.T) {
	var typedNil *fileStore
	var asInterface store = typedNil

	require.Panics(t, func() { NotNil(nil) })
	require.Panics(t, func() { NotNil(asInterface) })
	require.NotPanics(t, func() { NotNil(&fileStore{}) })
	require.NotPanics(t, func() { NotNil(fileStore{}) })
}

func TestNotEmpty(t *testing.T) {
	require.PanicsWithValue(t, "expected base url to be non-empty", func() { NotEmpty("base url", "") })
	require.NotPanics(t, func() { NotEmpty("base url", "https://example.org") })
}
