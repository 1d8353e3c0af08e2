package lease_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcefetch/internal/lease"
	"sourcefetch/internal/testutils"
)

func TestAdvisoryLease_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	first := lease.New(s.DB, "priority-calculator")
	second := lease.New(s.DB, "priority-calculator")

	err := first.Do(ctx, func(ctx context.Context) error {
		inner := second.Do(ctx, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, lease.ErrLeaseHeld)
		return nil
	})
	require.NoError(t, err)

	ran := false
	require.NoError(t, second.Do(ctx, func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}
