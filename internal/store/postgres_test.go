package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weathertrack/geoscraper/internal/scrape"
)

func strptr(s string) *string { return &s }

func newMockStore(t *testing.T, excluded ...string) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithDB(mock, excluded, zap.NewNop()), mock
}

func TestUpsertCountriesInsertsNewRows(t *testing.T) {
	st, mock := newMockStore(t)

	url1 := strptr("https://example.com/Pakistan")
	url2 := strptr("https://example.com/India")
	entries := []scrape.Entry{
		{Name: "Pakistan", URL: url1},
		{Name: "India", URL: url2},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, url FROM countries`).
		WithArgs("Pakistan").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO countries`).
		WithArgs(pgxmock.AnyArg(), "Pakistan", url1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT id, url FROM countries`).
		WithArgs("India").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO countries`).
		WithArgs(pgxmock.AnyArg(), "India", url2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ids, stats, err := st.UpsertCountries(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)
	assert.Zero(t, stats.Updated)
	assert.Zero(t, stats.Existing)
	assert.Len(t, ids, 2)
	assert.NotEmpty(t, ids["Pakistan"])
	assert.NotEmpty(t, ids["India"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCountriesSecondPassIsIdempotent(t *testing.T) {
	st, mock := newMockStore(t)

	url1 := strptr("https://example.com/Pakistan")
	url2 := strptr("https://example.com/India")
	entries := []scrape.Entry{
		{Name: "Pakistan", URL: url1},
		{Name: "India", URL: url2},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, url FROM countries`).
		WithArgs("Pakistan").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url"}).AddRow("c-1", url1))
	mock.ExpectQuery(`SELECT id, url FROM countries`).
		WithArgs("India").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url"}).AddRow("c-2", url2))
	mock.ExpectCommit()

	ids, stats, err := st.UpsertCountries(context.Background(), entries)
	require.NoError(t, err)
	assert.Zero(t, stats.Inserted)
	assert.Zero(t, stats.Updated)
	assert.Equal(t, 2, stats.Existing)
	assert.Equal(t, "c-1", ids["Pakistan"])
	assert.Equal(t, "c-2", ids["India"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCountriesDetectsURLChange(t *testing.T) {
	st, mock := newMockStore(t)

	newURL := strptr("https://example.com/pk-new")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, url FROM countries`).
		WithArgs("Pakistan").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url"}).
			AddRow("c-1", strptr("https://example.com/pk-old")))
	mock.ExpectExec(`UPDATE countries SET url`).
		WithArgs("c-1", newURL).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	ids, stats, err := st.UpsertCountries(context.Background(),
		[]scrape.Entry{{Name: "Pakistan", URL: newURL}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	assert.Zero(t, stats.Inserted)
	assert.Equal(t, "c-1", ids["Pakistan"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCountriesSkipsExcludedNames(t *testing.T) {
	st, mock := newMockStore(t, "Israel")

	url1 := strptr("https://example.com/Pakistan")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, url FROM countries`).
		WithArgs("Pakistan").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url"}).AddRow("c-1", url1))
	mock.ExpectCommit()

	ids, stats, err := st.UpsertCountries(context.Background(), []scrape.Entry{
		{Name: "Israel", URL: strptr("https://example.com/Israel")},
		{Name: "Pakistan", URL: url1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Existing)
	assert.NotContains(t, ids, "Israel")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCountriesRollsBackOnError(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, url FROM countries`).
		WithArgs("Pakistan").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, _, err := st.UpsertCountries(context.Background(),
		[]scrape.Entry{{Name: "Pakistan", URL: strptr("https://example.com/pk")}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCitiesRequiresCountryIdentity(t *testing.T) {
	st, _ := newMockStore(t)
	_, err := st.UpsertCities(context.Background(), "",
		[]scrape.Entry{{Name: "Karachi"}})
	require.Error(t, err)
}

func TestUpsertCitiesRejectsOrphans(t *testing.T) {
	st, mock := newMockStore(t)

	url1 := strptr("https://example.com/Karachi")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, url FROM cities`).
		WithArgs("Karachi", "missing-country").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO cities`).
		WithArgs(pgxmock.AnyArg(), "Karachi", url1, "missing-country").
		WillReturnError(errors.New(`violates foreign key constraint "cities_country_id_fkey"`))
	mock.ExpectRollback()

	_, err := st.UpsertCities(context.Background(), "missing-country",
		[]scrape.Entry{{Name: "Karachi", URL: url1}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCitiesScopedToCountry(t *testing.T) {
	st, mock := newMockStore(t)

	url1 := strptr("https://example.com/Paris")
	mock.ExpectBegin()
	// "Paris" may already exist under a different country; the lookup is
	// scoped to this country's identity, so this insert is legitimate.
	mock.ExpectQuery(`SELECT id, url FROM cities`).
		WithArgs("Paris", "c-usa").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO cities`).
		WithArgs(pgxmock.AnyArg(), "Paris", url1, "c-usa").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	stats, err := st.UpsertCities(context.Background(), "c-usa",
		[]scrape.Entry{{Name: "Paris", URL: url1}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCitiesMixedOutcomes(t *testing.T) {
	st, mock := newMockStore(t)

	sameURL := strptr("https://example.com/Lahore")
	newURL := strptr("https://example.com/Karachi-new")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, url FROM cities`).
		WithArgs("Karachi", "c-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url"}).
			AddRow("ct-1", strptr("https://example.com/Karachi-old")))
	mock.ExpectExec(`UPDATE cities SET url`).
		WithArgs("ct-1", newURL).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT id, url FROM cities`).
		WithArgs("Lahore", "c-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url"}).AddRow("ct-2", sameURL))
	mock.ExpectQuery(`SELECT id, url FROM cities`).
		WithArgs("Quetta", "c-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO cities`).
		WithArgs(pgxmock.AnyArg(), "Quetta", (*string)(nil), "c-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	stats, err := st.UpsertCities(context.Background(), "c-1", []scrape.Entry{
		{Name: "Karachi", URL: newURL},
		{Name: "Lahore", URL: sameURL},
		{Name: "Quetta"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Existing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCountries(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, name, url FROM countries`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "url"}).
			AddRow("c-2", "India", strptr("https://example.com/in")).
			AddRow("c-1", "Pakistan", (*string)(nil)))

	countries, err := st.ListCountries(context.Background())
	require.NoError(t, err)
	require.Len(t, countries, 2)
	assert.Equal(t, "India", countries[0].Name)
	assert.Nil(t, countries[1].URL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCitiesByCountry(t *testing.T) {
	st, mock := newMockStore(t)

	t.Run("ReturnsRows", func(t *testing.T) {
		mock.ExpectQuery(`SELECT c.id, c.name, c.url`).
			WithArgs("Pakistan").
			WillReturnRows(pgxmock.NewRows([]string{"id", "name", "url"}).
				AddRow("ct-1", "Karachi", strptr("https://example.com/Karachi")))

		cities, err := st.CitiesByCountry(context.Background(), "Pakistan")
		require.NoError(t, err)
		require.Len(t, cities, 1)
		assert.Equal(t, "Karachi", cities[0].Name)
	})

	t.Run("UnknownCountryIsEmpty", func(t *testing.T) {
		mock.ExpectQuery(`SELECT c.id, c.name, c.url`).
			WithArgs("Nowhere").
			WillReturnRows(pgxmock.NewRows([]string{"id", "name", "url"}))

		cities, err := st.CitiesByCountry(context.Background(), "Nowhere")
		require.NoError(t, err)
		assert.Empty(t, cities)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
