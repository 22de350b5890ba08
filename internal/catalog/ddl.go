package catalog

import (
	"fmt"
	"strings"

	"dwh-etl/internal/config"
)

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for t.
//
// Each column is rendered as "<name> <type> [NOT NULL]"; primary key
// columns are collected into a trailing PRIMARY KEY clause.
func CreateTableSQL(t Table) string {
	cols := make([]string, 0, len(t.Columns)+1)
	var pks []string
	for _, c := range t.Columns {
		def := c.Name + " " + c.SQLType
		if c.NotNull {
			def += " NOT NULL"
		}
		cols = append(cols, def)
		if c.PrimaryKey {
			pks = append(pks, c.Name)
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n);", t.Name, strings.Join(cols, ",\n    "))
}

// DropTableSQL renders DROP TABLE IF EXISTS for t.
func DropTableSQL(t Table) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", t.Name)
}

// ClearTableSQL empties t. DELETE is used instead of TRUNCATE because
// TRUNCATE commits the surrounding transaction on Redshift.
func ClearTableSQL(t Table) string {
	return fmt.Sprintf("DELETE FROM %s;", t.Name)
}

// CopySQL renders the Redshift COPY for a staging table.
// It returns "" when t has no copy spec.
func CopySQL(t Table, p config.LoadParams) string {
	if t.Copy == nil {
		return ""
	}
	format := "'auto'"
	if t.Copy.JSONPaths {
		format = quoteLiteral(p.LogJSONPath)
	}
	return fmt.Sprintf(`COPY %s FROM %s
CREDENTIALS %s
FORMAT AS JSON %s
COMPUPDATE OFF
REGION %s;`,
		t.Name,
		quoteLiteral(t.Copy.Source.Path(p)),
		quoteLiteral("aws_iam_role="+p.IAMRoleARN),
		format,
		quoteLiteral(p.Region),
	)
}

// CountSQL counts the rows of a table.
func CountSQL(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s;", table)
}

// OrphanSongplaysSQL counts fact rows whose song_id is set but missing from songs.
const OrphanSongplaysSQL = `SELECT COUNT(*)
FROM songplays sp
LEFT JOIN songs s ON sp.song_id = s.song_id
WHERE sp.song_id IS NOT NULL
  AND s.song_id IS NULL;`

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
