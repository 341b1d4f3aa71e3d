package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/choibumgyu/HYU-CDW/internal/adapter/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testSchemaCDM is a small OMOP-shaped warehouse.
const testSchemaCDM = `
	CREATE SCHEMA cdm;

	CREATE TABLE cdm.person (
		person_id           BIGINT PRIMARY KEY,
		gender_concept_id   INTEGER NOT NULL,
		year_of_birth       INTEGER NOT NULL,
		birth_datetime      TIMESTAMP,
		person_source_value VARCHAR(50),
		race_source_value   VARCHAR(50)
	);
	COMMENT ON TABLE cdm.person IS 'Patients';
	COMMENT ON COLUMN cdm.person.person_source_value IS 'Hospital registration number';

	CREATE TABLE cdm.visit_occurrence (
		visit_occurrence_id BIGINT PRIMARY KEY,
		person_id           BIGINT NOT NULL REFERENCES cdm.person(person_id),
		visit_concept_id    INTEGER NOT NULL,
		visit_start_date    DATE NOT NULL,
		charge              NUMERIC(10,2),
		visit_uuid          UUID NOT NULL DEFAULT gen_random_uuid()
	);

	CREATE VIEW cdm.inpatient_visits AS
		SELECT visit_occurrence_id, person_id FROM cdm.visit_occurrence WHERE visit_concept_id = 9201;

	INSERT INTO cdm.person (person_id, gender_concept_id, year_of_birth, birth_datetime, person_source_value, race_source_value)
	SELECT
		i,
		CASE WHEN i % 2 = 0 THEN 8507 ELSE 8532 END,
		1940 + (i % 60),
		make_timestamp(1940 + (i % 60), 1 + (i % 12), 1 + (i % 28), 0, 0, 0),
		'P' || lpad(i::text, 8, '0'),
		CASE (i % 3) WHEN 0 THEN 'Asian' WHEN 1 THEN 'White' ELSE 'Black' END
	FROM generate_series(1, 300) AS i;

	INSERT INTO cdm.visit_occurrence (visit_occurrence_id, person_id, visit_concept_id, visit_start_date, charge)
	SELECT
		i,
		(i % 300) + 1,
		CASE (i % 3) WHEN 0 THEN 9201 WHEN 1 THEN 9202 ELSE 9203 END,
		DATE '2023-01-01' + (i % 365),
		(i % 97) * 10.25
	FROM generate_series(1, 1200) AS i;
`

// setupTestDB starts a Postgres testcontainer with the CDM fixture and
// returns a pool whose search_path points at the cdm schema.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	seed, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	_, err = seed.Exec(ctx, testSchemaCDM)
	require.NoError(t, err)
	_, err = seed.Exec(ctx, "ANALYZE")
	require.NoError(t, err)
	seed.Close()

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DatabaseURL: connStr,
		SearchPath:  "cdm,public",
		MaxConns:    4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}
