package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/tchan1002/pathfinder/internal/storage"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	_, err := NewWithPool(nil)
	require.Error(t, err)
}

func TestCreateSite(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO sites").
		WithArgs(pgxmock.AnyArg(), "acme.example", "https://acme.example/", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateSite(context.Background(), storage.Site{
		Domain:   "acme.example",
		StartURL: "https://acme.example/",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSiteNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, domain, start_url, created_at FROM sites").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "domain", "start_url", "created_at"}))

	_, err := store.GetSite(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPageReturnsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO pages").
		WithArgs(pgxmock.AnyArg(), "site-1", "https://acme.example/a?x=1",
			"https://acme.example/a?x=1", "Title", "Desc", "content", "hash", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("page-1"))

	id, err := store.UpsertPage(context.Background(), storage.Page{
		SiteID:          "site-1",
		URL:             "https://acme.example/a?x=1",
		NormalizedURL:   "https://acme.example/a?x=1",
		Title:           "Title",
		MetaDescription: "Desc",
		Content:         "content",
		ContentHash:     "hash",
		LastCrawledAt:   time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "page-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSummaryNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, page_id, text, text_hash, model, created_at").
		WithArgs("page-1", "hash").
		WillReturnRows(pgxmock.NewRows([]string{"id", "page_id", "text", "text_hash", "model", "created_at"}))

	_, err := store.GetSummary(context.Background(), "page-1", "hash")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceEmbeddingTransactional(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM embeddings").
		WithArgs("page-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO embeddings").
		WithArgs(pgxmock.AnyArg(), "page-1", "embed text", pgxmock.AnyArg(), "local").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.ReplaceEmbedding(context.Background(), storage.Embedding{
		PageID:  "page-1",
		Content: "embed text",
		Vector:  []float32{0.1, 0.2},
		Model:   "local",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchByVector(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("ORDER BY e.embedding <=>").
		WithArgs("site-1", pgxmock.AnyArg(), 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "url", "title", "summary", "content", "screenshot", "similarity", "distance",
		}).AddRow("page-1", "https://acme.example/a", "A", "summary", "content", "/snapshots/a.jpg", 0.91, 0.09))

	hits, err := store.SearchByVector(context.Background(), "site-1", []float32{0.1}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "page-1", hits[0].PageID)
	require.InDelta(t, 0.91, hits[0].Similarity, 1e-9)
	require.NotNil(t, hits[0].Distance)
	require.InDelta(t, 0.09, *hits[0].Distance, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPagesByRecency(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("ORDER BY p.last_crawled_at DESC").
		WithArgs("site-1", 5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "url", "title", "summary", "content", "screenshot",
		}).AddRow("page-1", "https://acme.example/a", "A", "", "content", ""))

	hits, err := store.ListPagesByRecency(context.Background(), "site-1", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Zero(t, hits[0].Similarity)
	require.Nil(t, hits[0].Distance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobStatusNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE jobs SET").
		WithArgs("missing", "running", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateJobStatus(context.Background(), "missing", storage.JobStatusRunning, "")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailOrphanedJobs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE jobs SET status = 'error'").
		WithArgs("server restarted").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	swept, err := store.FailOrphanedJobs(context.Background(), "server restarted")
	require.NoError(t, err)
	require.Equal(t, 2, swept)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFeedbackMissingJob(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := store.CreateFeedback(context.Background(), storage.Feedback{JobID: "missing", WasCorrect: false})
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
