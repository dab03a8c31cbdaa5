package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustProject(t *testing.T, st *SQLiteStore, name string) *Project {
	t.Helper()
	p, err := st.GetOrCreateProject(context.Background(), name)
	require.NoError(t, err)
	return p
}
