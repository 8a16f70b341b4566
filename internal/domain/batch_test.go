package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchTransitionsDeriveStatus(t *testing.T) {
	b := NewBatch("b1", "owner", "spring", 0, []string{"a", "b"}, t0)
	assert.Equal(t, BatchStatusPending, b.Status)

	require.NoError(t, b.ApplyTransition(JobStatusPending, JobStatusProcessing, t0))
	assert.Equal(t, BatchStatusProcessing, b.Status)
	require.NotNil(t, b.StartedAt)

	require.NoError(t, b.ApplyTransition(JobStatusProcessing, JobStatusCompleted, t0))
	require.NoError(t, b.ApplyTransition(JobStatusPending, JobStatusFailed, t0))
	assert.Equal(t, BatchStatusCompleted, b.Status)
	assert.NotNil(t, b.CompletedAt)
	assert.True(t, b.Consistent())
}

func TestBatchAllFailed(t *testing.T) {
	b := NewBatch("b1", "owner", "", 0, []string{"a"}, t0)
	require.NoError(t, b.ApplyTransition(JobStatusPending, JobStatusFailed, t0))
	assert.Equal(t, BatchStatusFailed, b.Status)
}

func TestBatchRejectsMoveFromEmptyCounter(t *testing.T) {
	b := NewBatch("b1", "owner", "", 0, []string{"a"}, t0)
	assert.ErrorIs(t, b.ApplyTransition(JobStatusProcessing, JobStatusCompleted, t0), ErrBatchInconsistent)
}

func TestBatchRecountMatchesIncrementalInAnyOrder(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for seed := int64(1); seed <= 8; seed++ {
		members := make([]Job, len(ids))
		for i, id := range ids {
			members[i] = Job{ID: id, Status: JobStatusPending}
		}
		b := NewBatch("b1", "owner", "", 0, ids, t0)
		rng := rand.New(rand.NewSource(seed))

		for step := 0; ; step++ {
			var open []int
			for i, m := range members {
				if !m.Status.Terminal() {
					open = append(open, i)
				}
			}
			if len(open) == 0 {
				break
			}
			i := open[rng.Intn(len(open))]
			from := members[i].Status
			now := t0.Add(time.Duration(step) * time.Second)
			switch {
			case from == JobStatusPending && rng.Intn(5) == 0:
				members[i].Status = JobStatusFailed
			case from == JobStatusPending:
				require.NoError(t, members[i].Claim("w", now))
			case rng.Intn(4) == 0:
				members[i].Status = JobStatusPending
			case rng.Intn(2) == 0:
				members[i].Status = JobStatusCompleted
			default:
				members[i].Status = JobStatusFailed
			}
			require.NoError(t, b.ApplyTransition(from, members[i].Status, now), "seed %d step %d", seed, step)
			require.True(t, b.Consistent(), "seed %d step %d", seed, step)

			recount := b.Clone()
			recount.Recount(members, now)
			require.Equal(t, b.Counters(), recount.Counters(), "seed %d step %d", seed, step)
		}
		assert.True(t, b.Status == BatchStatusCompleted || b.Status == BatchStatusFailed)
		assert.NotNil(t, b.CompletedAt)
	}
}
