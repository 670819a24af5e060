package tmstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tmcore/internal/nstring"
)

var tuColumns = []string{
	"guid", "job_guid", "rid", "sid", "nsrc", "ntgt", "notes", "q", "ts", "tu_order", "rank",
	"channel", "tu_group", "min_q", "plural_form", "parent_guid", "in_flight", "translation_provider", "ext",
}

var jobColumns = []string{
	"job_guid", "source_lang", "target_lang", "translation_provider", "status", "updated_at",
	"tm_store", "estimated_cost", "props",
}

type scanner interface{ Scan(dest ...any) error }

func scanTU(row scanner) (TU, error) {
	var (
		tu       TU
		nsrc     string
		ntgt     sql.NullString
		notes    sql.NullString
		inFlight int
		ext      sql.NullString
	)
	if err := row.Scan(
		&tu.GUID, &tu.JobGUID, &tu.RID, &tu.SID, &nsrc, &ntgt, &notes, &tu.Q, &tu.TS, &tu.Order, &tu.Rank,
		&tu.Channel, &tu.Group, &tu.MinQ, &tu.PluralForm, &tu.ParentGUID, &inFlight, &tu.TranslationProvider, &ext,
	); err != nil {
		return TU{}, err
	}
	var err error
	if tu.NSrc, err = nstring.Parse(nsrc); err != nil {
		return TU{}, fmt.Errorf("decode nsrc of %s: %w", tu.GUID, err)
	}
	if ntgt.Valid {
		if tu.NTgt, err = nstring.Parse(ntgt.String); err != nil {
			return TU{}, fmt.Errorf("decode ntgt of %s: %w", tu.GUID, err)
		}
		if tu.NTgt == nil {
			tu.NTgt = nstring.String{}
		}
	}
	if notes.Valid && notes.String != "" {
		tu.Notes = &Notes{}
		if err := json.Unmarshal([]byte(notes.String), tu.Notes); err != nil {
			return TU{}, fmt.Errorf("decode notes of %s: %w", tu.GUID, err)
		}
	}
	if ext.Valid && ext.String != "" {
		if err := json.Unmarshal([]byte(ext.String), &tu.Ext); err != nil {
			return TU{}, fmt.Errorf("decode ext of %s: %w", tu.GUID, err)
		}
	}
	tu.InFlight = inFlight != 0
	return tu, nil
}

func collectTUs(rows *sql.Rows) ([]TU, error) {
	defer rows.Close()
	var tus []TU
	for rows.Next() {
		tu, err := scanTU(rows)
		if err != nil {
			return nil, err
		}
		tus = append(tus, tu)
	}
	return tus, rows.Err()
}

// tuValues renders tu as insert arguments in insertColumns order.
func tuValues(tu TU, jobGUID string, order int) ([]any, error) {
	nsrc, err := nstring.Encode(tu.NSrc)
	if err != nil {
		return nil, fmt.Errorf("encode nsrc: %w", err)
	}
	var ntgt, flatTgt any
	if tu.NTgt != nil {
		encoded, err := nstring.Encode(tu.NTgt)
		if err != nil {
			return nil, fmt.Errorf("encode ntgt: %w", err)
		}
		ntgt = encoded
		flatTgt = nstring.Flatten(tu.NTgt)
	}
	notes, err := nullableJSON(tu.Notes, tu.Notes == nil)
	if err != nil {
		return nil, fmt.Errorf("encode notes: %w", err)
	}
	ext, err := nullableJSON(tu.Ext, len(tu.Ext) == 0)
	if err != nil {
		return nil, fmt.Errorf("encode ext: %w", err)
	}
	return []any{
		tu.GUID, jobGUID, tu.RID, tu.SID, nsrc, ntgt, nstring.Flatten(tu.NSrc), flatTgt, notes,
		tu.Q, tu.TS, order, tu.Channel, tu.Group, tu.MinQ, tu.PluralForm, tu.ParentGUID,
		boolToInt(tu.InFlight), tu.TranslationProvider, ext,
	}, nil
}

var insertColumns = []string{
	"guid", "job_guid", "rid", "sid", "nsrc", "ntgt", "flat_src", "flat_tgt", "notes",
	"q", "ts", "tu_order", "channel", "tu_group", "min_q", "plural_form", "parent_guid",
	"in_flight", "translation_provider", "ext",
}

func scanJob(row scanner) (*Job, error) {
	var (
		job       Job
		status    string
		updatedMS int64
		cost      sql.NullFloat64
		props     sql.NullString
	)
	if err := row.Scan(
		&job.JobGUID, &job.SourceLang, &job.TargetLang, &job.TranslationProvider, &status, &updatedMS,
		&job.TMStore, &cost, &props,
	); err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	job.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	if cost.Valid {
		value := cost.Float64
		job.EstimatedCost = &value
	}
	if props.Valid && props.String != "" {
		if err := json.Unmarshal([]byte(props.String), &job.Props); err != nil {
			return nil, fmt.Errorf("decode props of %s: %w", job.JobGUID, err)
		}
	}
	return &job, nil
}

func nullableJSON(value any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func guidSet(dst map[string]struct{}, guids ...string) {
	for _, guid := range guids {
		dst[guid] = struct{}{}
	}
}

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys
}
