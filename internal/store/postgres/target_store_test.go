package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

var targetCols = []string{
	"id", "user_id", "platform", "type", "term",
	"status", "next_scrape_at", "last_scraped_at", "leads_found",
}

func TestCreateTargetInserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTargetStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	tgt := leadscout.Target{
		ID:           "t-9",
		UserID:       "u-1",
		Platform:     leadscout.PlatformTwitter,
		Type:         leadscout.TargetKeyword,
		Term:         "plumber kigali",
		Status:       leadscout.TargetActive,
		NextScrapeAt: now,
	}
	mock.ExpectExec(`INSERT INTO targets`).
		WithArgs("t-9", "u-1", "twitter", "keyword", "plumber kigali", "active", now, (*time.Time)(nil), 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), tgt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDueTargetsQuery(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTargetStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(`SELECT .+ FROM targets\s+WHERE status = 'active' AND next_scrape_at <= \$1`).
		WithArgs(now, 50).
		WillReturnRows(pgxmock.NewRows(targetCols).
			AddRow("t-old", "u-1", "twitter", "keyword", "plumber kigali", "active", now.Add(-time.Hour), nil, 2).
			AddRow("t-new", "u-1", "twitter", "hashtag", "kigali", "active", now.Add(-time.Minute), nil, 0))

	due, err := store.DueTargets(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, "t-old", due[0].ID)
	require.Equal(t, leadscout.TargetKeyword, due[0].Type)
	require.Equal(t, 2, due[0].LeadsFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceNextScrapeUsesGreatest(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTargetStore(mock)
	require.NoError(t, err)

	to := time.Unix(1700000000, 0).UTC().Add(30 * time.Minute)
	mock.ExpectExec(`UPDATE targets SET next_scrape_at = GREATEST\(next_scrape_at, \$2\)`).
		WithArgs("t-1", to).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.AdvanceNextScrape(context.Background(), "t-1", to))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceNextScrapeMissingTarget(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTargetStore(mock)
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE targets SET next_scrape_at`).
		WithArgs("t-gone", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.AdvanceNextScrape(context.Background(), "t-gone", time.Now().UTC())
	require.ErrorIs(t, err, leadscout.ErrTargetNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkScrapedAndIncrementLeads(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTargetStore(mock)
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec(`UPDATE targets SET last_scraped_at = \$2`).
		WithArgs("t-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE targets SET leads_found = leads_found \+ \$2`).
		WithArgs("t-1", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkScraped(context.Background(), "t-1", at))
	require.NoError(t, store.IncrementLeadsFound(context.Background(), "t-1", 3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTargetNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTargetStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .+ FROM targets WHERE id = \$1`).
		WithArgs("t-gone").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Get(context.Background(), "t-gone")
	require.ErrorIs(t, err, leadscout.ErrTargetNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPostInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	post := leadscout.RawPost{
		Platform:     leadscout.PlatformTwitter,
		PostID:       "p1",
		TargetID:     "t-1",
		UserID:       "u-1",
		Text:         "any recommendations for a good plumber?",
		Author:       "Jane",
		AuthorHandle: "jane456",
		PostedAt:     now.Add(-time.Hour),
		URL:          "https://twitter.com/jane456/status/1",
		Processed:    false,
		FetchedAt:    now,
		BlobURI:      "gs://scrapes/t-1/p1.json",
	}

	mock.ExpectExec(`INSERT INTO raw_posts`).
		WithArgs(
			"twitter",
			post.PostID,
			post.TargetID,
			post.UserID,
			post.Text,
			post.Author,
			post.AuthorHandle,
			post.PostedAt,
			post.URL,
			post.Processed,
			post.FetchedAt,
			post.BlobURI,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertPost(context.Background(), post))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPostRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostStore(mock)
	require.NoError(t, err)

	err = store.UpsertPost(context.Background(), leadscout.RawPost{Platform: leadscout.PlatformTwitter})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
