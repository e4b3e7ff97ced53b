package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivolkov/statement-ingest/internal/jobs"
)

func seedJobs(t *testing.T, s *Store) {
	t.Helper()
	for _, job := range []*jobs.ProcessStatementJob{
		{JobID: "j1", StatementID: "stmt-a", UserID: "u1", Status: jobs.JobStatusCompleted},
		{JobID: "j2", StatementID: "stmt-a", UserID: "u1", Status: jobs.JobStatusFailed},
		{JobID: "j3", StatementID: "stmt-b", UserID: "u2", Status: jobs.JobStatusCompleted},
	} {
		require.NoError(t, s.SaveJob(context.Background(), job))
	}
}

func TestSaveJobRequiresID(t *testing.T) {
	s := NewStore()
	err := s.SaveJob(context.Background(), &jobs.ProcessStatementJob{StatementID: "stmt-a"})
	require.Error(t, err)
}

func TestGetJobReturnsCopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SaveJob(context.Background(), &jobs.ProcessStatementJob{
		JobID:       "j1",
		StatementID: "stmt-a",
		Status:      jobs.JobStatusPending,
	}))

	job, err := s.GetJob(context.Background(), "j1")
	require.NoError(t, err)

	// Mutating the returned job must not affect the stored one.
	job.Status = jobs.JobStatusFailed

	again, err := s.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, again.Status)
}

func TestGetJobNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListJobsFilters(t *testing.T) {
	s := NewStore()
	seedJobs(t, s)

	byStatement, err := s.ListJobs(context.Background(), jobs.JobFilter{StatementID: "stmt-a"})
	require.NoError(t, err)
	assert.Len(t, byStatement, 2)

	byUser, err := s.ListJobs(context.Background(), jobs.JobFilter{UserID: "u2"})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "j3", byUser[0].JobID)

	byStatus, err := s.ListJobs(context.Background(), jobs.JobFilter{Status: jobs.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "j2", byStatus[0].JobID)

	both, err := s.ListJobs(context.Background(), jobs.JobFilter{
		StatementID: "stmt-a",
		Status:      jobs.JobStatusCompleted,
	})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "j1", both[0].JobID)
}

func TestListJobsLimitAndOffset(t *testing.T) {
	s := NewStore()
	seedJobs(t, s)

	limited, err := s.ListJobs(context.Background(), jobs.JobFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	past, err := s.ListJobs(context.Background(), jobs.JobFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestUpdateJobStatus(t *testing.T) {
	s := NewStore()
	seedJobs(t, s)

	require.NoError(t, s.UpdateJobStatus(context.Background(), "j1", jobs.JobStatusFailed, "boom"))

	job, err := s.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.Error)

	require.Error(t, s.UpdateJobStatus(context.Background(), "missing", jobs.JobStatusFailed, ""))
}
