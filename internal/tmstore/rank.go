package tmstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tmcore/internal/sqlitedb"
)

// rankOrder defines the best-match ordering among rows sharing a guid. The
// job GUID is the deterministic tie-break when quality and timestamp are equal.
const rankOrder = "q DESC, ts DESC, job_guid ASC"

const recomputeRankSQL = `
WITH ranked AS (
    SELECT guid, job_guid,
           ROW_NUMBER() OVER (PARTITION BY guid ORDER BY ` + rankOrder + `) AS new_rank
    FROM {{table}}
    WHERE guid IN (SELECT value FROM json_each(?))
)
UPDATE {{table}} SET rank = ranked.new_rank
FROM ranked
WHERE {{table}}.guid = ranked.guid
  AND {{table}}.job_guid = ranked.job_guid
  AND {{table}}.rank <> ranked.new_rank`

// recomputeRank rewrites rank for the given guids only, leaving rows whose
// rank is unchanged untouched.
func recomputeRank(ctx context.Context, q sqlitedb.Querier, table string, guids []string) error {
	if len(guids) == 0 {
		return nil
	}
	payload, err := json.Marshal(guids)
	if err != nil {
		return fmt.Errorf("encode guids: %w", err)
	}
	query := strings.ReplaceAll(recomputeRankSQL, "{{table}}", table)
	if _, err := q.ExecContext(ctx, query, string(payload)); err != nil {
		return fmt.Errorf("recompute rank on %s: %w", table, err)
	}
	return nil
}
