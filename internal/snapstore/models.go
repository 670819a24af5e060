package snapstore

import (
	"encoding/json"
	"fmt"

	"tmcore/internal/nstring"
)

// Table names a snapshot table.
type Table string

const (
	TableResources Table = "resources"
	TableSegments  Table = "segments"
)

// Valid reports whether t names a known table.
func (t Table) Valid() bool {
	return t == TableResources || t == TableSegments
}

func (t Table) countColumn() string {
	if t == TableResources {
		return "resource_count"
	}
	return "segment_count"
}

func (t Table) orderBy() []string {
	if t == TableSegments {
		return []string{"row_order", "row_key"}
	}
	return []string{"row_key"}
}

// Row is one snapshot row identified by its natural key.
type Row struct {
	Key    string         `json:"key"`
	Order  int            `json:"order"`
	Fields map[string]any `json:"fields"`
}

// TOCEntry lists the complete snapshots of a channel, oldest first.
type TOCEntry struct {
	Channel    string  `json:"channel"`
	Timestamps []int64 `json:"timestamps"`
}

// SaveResult counts what a snapshot save did.
type SaveResult struct {
	Added     int `json:"added"`
	Changed   int `json:"changed"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// Resource is the typed form of a resources row. Modified is epoch
// milliseconds.
type Resource struct {
	RID      string            `json:"rid"`
	Modified int64             `json:"modified,omitempty"`
	Format   string            `json:"format,omitempty"`
	Props    map[string]string `json:"props,omitempty"`
}

// Segment is the typed form of a segments row. Segments are keyed by GUID.
type Segment struct {
	GUID       string         `json:"guid"`
	RID        string         `json:"rid"`
	SID        string         `json:"sid"`
	NSrc       nstring.String `json:"nsrc"`
	NTgt       nstring.String `json:"ntgt,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	Group      string         `json:"group,omitempty"`
	PluralForm string         `json:"pluralForm,omitempty"`
	Order      int            `json:"-"`
}

// ResourceRow converts r into a Row keyed by rid.
func ResourceRow(r Resource) (Row, error) {
	fields, err := toFields(r)
	if err != nil {
		return Row{}, err
	}
	return Row{Key: r.RID, Fields: fields}, nil
}

// SegmentRow converts s into a Row keyed by guid.
func SegmentRow(s Segment) (Row, error) {
	fields, err := toFields(s)
	if err != nil {
		return Row{}, err
	}
	return Row{Key: s.GUID, Order: s.Order, Fields: fields}, nil
}

// AsResource decodes a resources row.
func (r Row) AsResource() (Resource, error) {
	var res Resource
	if err := fromFields(r.Fields, &res); err != nil {
		return Resource{}, err
	}
	if res.RID == "" {
		res.RID = r.Key
	}
	return res, nil
}

// AsSegment decodes a segments row.
func (r Row) AsSegment() (Segment, error) {
	var seg Segment
	if err := fromFields(r.Fields, &seg); err != nil {
		return Segment{}, err
	}
	if seg.GUID == "" {
		seg.GUID = r.Key
	}
	seg.Order = r.Order
	return seg, nil
}

func toFields(value any) (map[string]any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode row fields: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode row fields: %w", err)
	}
	return fields, nil
}

func fromFields(fields map[string]any, dst any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode row fields: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode row fields: %w", err)
	}
	return nil
}
