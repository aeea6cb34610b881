package archive

import (
	_ "embed"
)

const (
	selectSessionIDSQL = `
SELECT id
FROM sessions
WHERE start_time = ?`

	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      end_time,
                      interval,
                      start_name,
                      start_elevation,
                      end_name,
                      end_elevation)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	updateSessionSQL = `
UPDATE sessions
SET end_time        = ?,
    interval        = ?,
    start_name      = ?,
    start_elevation = ?,
    end_name        = ?,
    end_elevation   = ?,
    archived_at     = CURRENT_TIMESTAMP
WHERE id = ?`

	deleteSamplesSQL = `
DELETE
FROM samples
WHERE session_id = ?`

	insertSamplesSQL = `
INSERT INTO samples (session_id,
                     seq,
                     timestamp,
                     pressure,
                     temperature)
VALUES `

	sessionColumns = `
    s.id,
    s.start_time,
    s.end_time,
    s.interval,
    s.start_name,
    s.start_elevation,
    s.end_name,
    s.end_elevation,
    (SELECT COUNT(*) FROM samples WHERE session_id = s.id)`

	selectSessionSQL = `
SELECT` + sessionColumns + `
FROM sessions s
WHERE s.id = ?`

	selectSessionsSQL = `
SELECT` + sessionColumns + `
FROM sessions s
ORDER BY s.start_time`

	selectSamplesSQL = `
SELECT timestamp,
       pressure,
       temperature
FROM samples
WHERE session_id = ?
ORDER BY seq`

	upsertSummarySQL = `
INSERT INTO summaries (start_time,
                       end_time,
                       start_loc_index,
                       end_loc_index,
                       start_temp,
                       end_temp)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (start_time) DO UPDATE SET end_time        = excluded.end_time,
                                       start_loc_index = excluded.start_loc_index,
                                       end_loc_index   = excluded.end_loc_index,
                                       start_temp      = excluded.start_temp,
                                       end_temp        = excluded.end_temp`

	selectSummariesSQL = `
SELECT start_time,
       end_time,
       start_loc_index,
       end_loc_index,
       start_temp,
       end_temp
FROM summaries
ORDER BY start_time`
)

//go:embed schema.sql
var schemaSQL string
