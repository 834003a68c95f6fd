package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mfetl/internal/registry"
	"mfetl/pkg/platform/sentinel"
)

func TestMemory_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Load(ctx)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	snap := registry.NewSnapshot([]registry.NAVQuote{{SchemeCode: "1", SchemeName: "One"}}, time.Now())
	require.NoError(t, m.Save(ctx, snap))
	require.NoError(t, m.Save(ctx, nil), "nil snapshot is ignored")

	got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Same(t, snap, got)
}
