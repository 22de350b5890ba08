package catalog

// Table names.
const (
	StagingEvents = "staging_events"
	StagingSongs  = "staging_songs"
	Songplays     = "songplays"
	Users         = "users"
	Songs         = "songs"
	Artists       = "artists"
	Time          = "time"
)

// Default returns the warehouse registry. Drop and create run in this
// order; inserts run in dependency order (users, songs, artists, time,
// songplays).
func Default() *Catalog {
	return MustNew(
		stagingEventsTable,
		stagingSongsTable,
		songplaysTable,
		usersTable,
		songsTable,
		artistsTable,
		timeTable,
	)
}

var stagingEventsTable = Table{
	Name: StagingEvents,
	Kind: Staging,
	Columns: []Column{
		{Name: "artist", SQLType: "VARCHAR"},
		{Name: "auth", SQLType: "VARCHAR"},
		{Name: "firstName", SQLType: "VARCHAR"},
		{Name: "gender", SQLType: "VARCHAR"},
		{Name: "itemInSession", SQLType: "INT"},
		{Name: "lastName", SQLType: "VARCHAR"},
		{Name: "length", SQLType: "FLOAT8"},
		{Name: "level", SQLType: "VARCHAR"},
		{Name: "location", SQLType: "VARCHAR"},
		{Name: "method", SQLType: "VARCHAR"},
		{Name: "page", SQLType: "VARCHAR"},
		{Name: "registration", SQLType: "VARCHAR"},
		{Name: "sessionId", SQLType: "INT"},
		{Name: "song", SQLType: "VARCHAR"},
		{Name: "status", SQLType: "INT"},
		{Name: "ts", SQLType: "VARCHAR"},
		{Name: "userAgent", SQLType: "VARCHAR"},
		{Name: "userId", SQLType: "INT"},
	},
	Copy: &CopySpec{Source: LogData, JSONPaths: true},
}

var stagingSongsTable = Table{
	Name: StagingSongs,
	Kind: Staging,
	Columns: []Column{
		{Name: "num_songs", SQLType: "INT"},
		{Name: "artist_id", SQLType: "VARCHAR"},
		{Name: "artist_latitude", SQLType: "FLOAT"},
		{Name: "artist_longitude", SQLType: "FLOAT"},
		{Name: "artist_location", SQLType: "VARCHAR"},
		{Name: "artist_name", SQLType: "VARCHAR"},
		{Name: "song_id", SQLType: "VARCHAR"},
		{Name: "title", SQLType: "VARCHAR"},
		{Name: "duration", SQLType: "FLOAT"},
		{Name: "year", SQLType: "INT"},
	},
	Copy: &CopySpec{Source: SongData},
}

var songplaysTable = Table{
	Name: Songplays,
	Kind: Fact,
	Columns: []Column{
		{Name: "songplay_id", SQLType: "INT IDENTITY(1,1)", PrimaryKey: true},
		{Name: "start_time", SQLType: "TIMESTAMP"},
		{Name: "user_id", SQLType: "INT", NotNull: true},
		{Name: "level", SQLType: "VARCHAR"},
		{Name: "song_id", SQLType: "VARCHAR"},
		{Name: "artist_id", SQLType: "VARCHAR"},
		{Name: "session_id", SQLType: "INT"},
		{Name: "location", SQLType: "VARCHAR"},
		{Name: "user_agent", SQLType: "VARCHAR"},
	},
	DependsOn: []string{StagingEvents, StagingSongs, Users, Songs, Artists, Time},
	Insert:    []string{songplaysInsert},
}

var usersTable = Table{
	Name: Users,
	Kind: Dimension,
	Columns: []Column{
		{Name: "user_id", SQLType: "INT", PrimaryKey: true},
		{Name: "first_name", SQLType: "VARCHAR"},
		{Name: "last_name", SQLType: "VARCHAR"},
		{Name: "gender", SQLType: "VARCHAR"},
		{Name: "level", SQLType: "VARCHAR"},
	},
	DependsOn: []string{StagingEvents},
	Insert:    []string{usersUpdate, usersInsert},
}

var songsTable = Table{
	Name: Songs,
	Kind: Dimension,
	Columns: []Column{
		{Name: "song_id", SQLType: "VARCHAR", PrimaryKey: true},
		{Name: "title", SQLType: "VARCHAR"},
		{Name: "artist_id", SQLType: "VARCHAR", NotNull: true},
		{Name: "year", SQLType: "INT"},
		{Name: "duration", SQLType: "FLOAT"},
	},
	DependsOn: []string{StagingSongs},
	Insert:    []string{songsInsert},
}

var artistsTable = Table{
	Name: Artists,
	Kind: Dimension,
	Columns: []Column{
		{Name: "artist_id", SQLType: "VARCHAR", PrimaryKey: true},
		{Name: "name", SQLType: "VARCHAR"},
		{Name: "location", SQLType: "VARCHAR"},
		{Name: "latitude", SQLType: "FLOAT"},
		{Name: "longitude", SQLType: "FLOAT"},
	},
	DependsOn: []string{StagingSongs},
	Insert:    []string{artistsInsert},
}

var timeTable = Table{
	Name: Time,
	Kind: Dimension,
	Columns: []Column{
		{Name: "start_time", SQLType: "TIMESTAMP", PrimaryKey: true},
		{Name: "hour", SQLType: "INT"},
		{Name: "day", SQLType: "INT"},
		{Name: "week", SQLType: "INT"},
		{Name: "month", SQLType: "INT"},
		{Name: "year", SQLType: "INT"},
		{Name: "weekday", SQLType: "INT"},
	},
	DependsOn: []string{StagingEvents},
	Insert:    []string{timeInsert},
}

// usersUpdate refreshes existing users from their latest staged event,
// regardless of page.
const usersUpdate = `UPDATE users
SET first_name = s.firstName,
    last_name = s.lastName,
    gender = s.gender,
    level = s.level
FROM (
    SELECT userId, firstName, lastName, gender, level,
           ROW_NUMBER() OVER (PARTITION BY userId ORDER BY CAST(ts AS BIGINT) DESC) AS rn
    FROM staging_events
    WHERE userId IS NOT NULL
) s
WHERE users.user_id = s.userId
  AND s.rn = 1;`

// usersInsert adds users not yet present, taken from NextPage events only.
const usersInsert = `INSERT INTO users (user_id, first_name, last_name, gender, level)
SELECT s.userId, s.firstName, s.lastName, s.gender, s.level
FROM (
    SELECT userId, firstName, lastName, gender, level,
           ROW_NUMBER() OVER (PARTITION BY userId ORDER BY CAST(ts AS BIGINT) DESC) AS rn
    FROM staging_events
    WHERE page = 'NextPage'
      AND userId IS NOT NULL
) s
LEFT JOIN users u ON s.userId = u.user_id
WHERE u.user_id IS NULL
  AND s.rn = 1;`

const songsInsert = `INSERT INTO songs (song_id, title, artist_id, year, duration)
SELECT s.song_id, s.title, s.artist_id, s.year, s.duration
FROM (
    SELECT song_id, title, artist_id, year, duration,
           ROW_NUMBER() OVER (PARTITION BY song_id ORDER BY artist_id, title) AS rn
    FROM staging_songs
    WHERE song_id IS NOT NULL
      AND artist_id IS NOT NULL
) s
LEFT JOIN songs existing ON s.song_id = existing.song_id
WHERE existing.song_id IS NULL
  AND s.rn = 1;`

const artistsInsert = `INSERT INTO artists (artist_id, name, location, latitude, longitude)
SELECT s.artist_id, s.artist_name, s.artist_location, s.artist_latitude, s.artist_longitude
FROM (
    SELECT artist_id, artist_name, artist_location, artist_latitude, artist_longitude,
           ROW_NUMBER() OVER (PARTITION BY artist_id ORDER BY artist_name, artist_location) AS rn
    FROM staging_songs
    WHERE artist_id IS NOT NULL
) s
LEFT JOIN artists existing ON s.artist_id = existing.artist_id
WHERE existing.artist_id IS NULL
  AND s.rn = 1;`

// timeInsert adds one row per distinct event instant not already present.
// week is the ISO week; weekday is 0 (Sunday) through 6.
const timeInsert = `INSERT INTO time (start_time, hour, day, week, month, year, weekday)
SELECT t.start_time,
       EXTRACT(hour FROM t.start_time),
       EXTRACT(day FROM t.start_time),
       EXTRACT(week FROM t.start_time),
       EXTRACT(month FROM t.start_time),
       EXTRACT(year FROM t.start_time),
       EXTRACT(dow FROM t.start_time)
FROM (
    SELECT DISTINCT TIMESTAMP 'epoch' + CAST(ts AS FLOAT8) / 1000 * INTERVAL '1 second' AS start_time
    FROM staging_events
    WHERE ts IS NOT NULL
) t
LEFT JOIN time existing ON t.start_time = existing.start_time
WHERE existing.start_time IS NULL;`

// songplaysInsert derives fact rows from events whose (artist, song, length)
// matches a staged song that made it into songs. artist_songs keeps one song
// per (artist_name, title, duration) so an event yields at most one fact row.
const songplaysInsert = `INSERT INTO songplays (start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
WITH artist_songs AS (
    SELECT song_id, song_title, length, artist_id, artist_name
    FROM (
        SELECT ss.song_id, ss.title AS song_title, ss.duration AS length,
               ss.artist_id, ss.artist_name,
               ROW_NUMBER() OVER (PARTITION BY ss.artist_name, ss.title, ss.duration ORDER BY ss.song_id) AS rn
        FROM staging_songs ss
        INNER JOIN songs s ON ss.song_id = s.song_id
    ) m
    WHERE m.rn = 1
)
SELECT TIMESTAMP 'epoch' + CAST(e.ts AS FLOAT8) / 1000 * INTERVAL '1 second' AS start_time,
       e.userId,
       e.level,
       a.song_id,
       a.artist_id,
       e.sessionId,
       e.location,
       e.userAgent
FROM staging_events e
INNER JOIN artist_songs a
    ON e.artist = a.artist_name
   AND e.song = a.song_title
   AND e.length = a.length
WHERE e.userId IS NOT NULL;`
