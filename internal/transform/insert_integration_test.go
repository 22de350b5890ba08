//go:build integration

package transform

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"dwh-etl/internal/catalog"
	"dwh-etl/internal/config"
	"dwh-etl/internal/warehouse"

	"github.com/jackc/pgx/v5"
)

// The insert statements are plain SQL that PostgreSQL also accepts, so they
// run against a scratch schema in any Postgres reachable via DWH_TEST_DSN.
const testSchema = "dwh_etl_it"

func setupWarehouse(t *testing.T) warehouse.Session {
	t.Helper()
	dsn := os.Getenv("DWH_TEST_DSN")
	if dsn == "" {
		t.Skip("DWH_TEST_DSN not set")
	}
	pc, err := pgx.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("invalid DWH_TEST_DSN: %v", err)
	}
	sslMode := os.Getenv("DWH_TEST_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	ctx := context.Background()
	session, err := warehouse.Connect(ctx, config.Connection{
		Host:           pc.Host,
		Port:           int(pc.Port),
		DBName:         pc.Database,
		User:           pc.User,
		Password:       pc.Password,
		SSLMode:        sslMode,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	t.Cleanup(func() {
		session.Exec(ctx, "DROP SCHEMA IF EXISTS "+testSchema+" CASCADE")
		session.Close(ctx)
	})

	mustExec(t, session,
		"DROP SCHEMA IF EXISTS "+testSchema+" CASCADE",
		"CREATE SCHEMA "+testSchema,
		"SET search_path TO "+testSchema,
	)
	for _, tbl := range catalog.Default().Tables() {
		mustExec(t, session, catalog.CreateTableSQL(postgresTable(tbl)))
	}
	return session
}

// postgresTable swaps the Redshift IDENTITY column for SERIAL.
func postgresTable(tbl catalog.Table) catalog.Table {
	cols := append([]catalog.Column(nil), tbl.Columns...)
	for i := range cols {
		if strings.Contains(cols[i].SQLType, "IDENTITY") {
			cols[i].SQLType = "SERIAL"
		}
	}
	tbl.Columns = cols
	return tbl
}

func mustExec(t *testing.T, s warehouse.Session, stmts ...string) {
	t.Helper()
	for _, sql := range stmts {
		if _, err := s.Exec(context.Background(), sql); err != nil {
			t.Fatalf("%s: %v", sql, err)
		}
	}
}

func count(t *testing.T, s warehouse.Session, table string) int64 {
	t.Helper()
	n, err := warehouse.Count(context.Background(), s, catalog.CountSQL(table))
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func seedStaging(t *testing.T, s warehouse.Session) {
	t.Helper()
	mustExec(t, s,
		`INSERT INTO staging_songs (num_songs, artist_id, artist_location, artist_name, song_id, title, duration, year) VALUES
		(1, 'AR1', 'Lisbon', 'Artist One', 'SO1', 'Song A', 200.5, 2001),
		(1, 'AR1', 'Lisbon', 'Artist One', 'SO2', 'Song B', 150.0, 2003),
		(1, 'AR1', 'Lisbon', 'Artist One', 'SO3', 'Song A', 200.5, 2001)`,
		// User 7 already exists as free; their latest event is paid.
		// User 8 never reaches NextPage. User 9 is new and upgrades mid-batch.
		`INSERT INTO staging_events (artist, firstName, lastName, gender, length, level, location, page, sessionId, song, ts, userId, userAgent) VALUES
		('Artist One', 'Ann', 'Lee', 'F', 200.5, 'free', 'Porto', 'NextPage', 10, 'Song A', '1541121000000', 7, 'ua'),
		('Artist One', 'Ann', 'Lee', 'F', 999.0, 'paid', 'Porto', 'NextPage', 10, 'Song A', '1541121934796', 7, 'ua'),
		(NULL, 'Bo', 'Ray', 'M', NULL, 'free', 'Faro', 'Home', 11, NULL, '1541122000000', 8, 'ua'),
		('Other', 'Cy', 'Dee', 'M', 10.0, 'free', 'Braga', 'NextPage', 12, 'Nope', '1541123000000', 9, 'ua'),
		('Other', 'Cy', 'Dee', 'M', 10.0, 'paid', 'Braga', 'NextPage', 12, 'Nope', '1541124000000', 9, 'ua')`,
		`INSERT INTO users (user_id, first_name, last_name, gender, level) VALUES (7, 'Old', 'Name', 'F', 'free')`,
	)
}

func TestInsertAllAgainstPostgres(t *testing.T) {
	quiet(t)
	s := setupWarehouse(t)
	seedStaging(t, s)
	ctx := context.Background()
	engine := NewEngine(catalog.Default(), warehouse.NewExecutor(s, config.CommitModeStatement, false))

	if _, err := engine.InsertAll(ctx); err != nil {
		t.Fatalf("InsertAll() error = %v", err)
	}

	var level, first string
	if err := s.QueryRow(ctx, "SELECT level, first_name FROM users WHERE user_id = 7").Scan(&level, &first); err != nil {
		t.Fatalf("user 7: %v", err)
	}
	if level != "paid" || first != "Ann" {
		t.Errorf("user 7 = %s/%s, want paid/Ann", level, first)
	}
	if err := s.QueryRow(ctx, "SELECT level FROM users WHERE user_id = 9").Scan(&level); err != nil || level != "paid" {
		t.Errorf("user 9 level = %q (%v), want paid", level, err)
	}
	if n := count(t, s, catalog.Users); n != 2 {
		t.Errorf("users = %d, want 2 (user 8 has no NextPage event)", n)
	}

	if n := count(t, s, catalog.Artists); n != 1 {
		t.Errorf("artists = %d, want one row for AR1", n)
	}
	if n := count(t, s, catalog.Songs); n != 3 {
		t.Errorf("songs = %d, want 3", n)
	}

	// Only the first user 7 event matches (artist, title, length); SO3
	// shares that triple with SO1.
	var songID string
	if err := s.QueryRow(ctx, "SELECT song_id FROM songplays").Scan(&songID); err != nil {
		t.Fatalf("songplays: %v", err)
	}
	if songID != "SO1" {
		t.Errorf("songplay song_id = %s, want SO1", songID)
	}
	if n := count(t, s, catalog.Songplays); n != 1 {
		t.Errorf("songplays = %d, want 1", n)
	}

	var hour, day, week, month, year, weekday int
	err := s.QueryRow(ctx, `SELECT hour, day, week, month, year, weekday FROM time
		WHERE start_time = TIMESTAMP '2018-11-02 01:25:34.796'`).Scan(&hour, &day, &week, &month, &year, &weekday)
	if err != nil {
		t.Fatalf("time row for 1541121934796: %v", err)
	}
	if hour != 1 || day != 2 || week != 44 || month != 11 || year != 2018 || weekday != 5 {
		t.Errorf("time = h%d d%d w%d m%d y%d dow%d, want h1 d2 w44 m11 y2018 dow5", hour, day, week, month, year, weekday)
	}
	if n := count(t, s, catalog.Time); n != 5 {
		t.Errorf("time = %d, want 5 distinct instants", n)
	}

	// A rerun over the same staging leaves the dimensions unchanged.
	if _, err := engine.InsertAll(ctx); err != nil {
		t.Fatalf("second InsertAll() error = %v", err)
	}
	for table, want := range map[string]int64{catalog.Users: 2, catalog.Songs: 3, catalog.Artists: 1, catalog.Time: 5} {
		if n := count(t, s, table); n != want {
			t.Errorf("after rerun %s = %d, want %d", table, n, want)
		}
	}
}
