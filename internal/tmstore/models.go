package tmstore

import (
	"time"

	"tmcore/internal/nstring"
)

// JobStatus represents the lifecycle state of a translation job.
type JobStatus string

const (
	JobCreated   JobStatus = "created"
	JobPending   JobStatus = "pending"
	JobDone      JobStatus = "done"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobCancelled
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobCreated, JobPending, JobDone, JobCancelled:
		return true
	}
	return false
}

// Notes carries translator-facing context for a TU.
type Notes struct {
	Desc string            `json:"desc,omitempty"`
	Ext  map[string]string `json:"ext,omitempty"`
}

// TU is a single translation unit.
type TU struct {
	GUID                string            `json:"guid"`
	JobGUID             string            `json:"jobGuid"`
	RID                 string            `json:"rid,omitempty"`
	SID                 string            `json:"sid,omitempty"`
	NSrc                nstring.String    `json:"nsrc"`
	NTgt                nstring.String    `json:"ntgt,omitempty"`
	Notes               *Notes            `json:"notes,omitempty"`
	Q                   int               `json:"q"`
	TS                  int64             `json:"ts"`
	Order               int               `json:"order"`
	Rank                int               `json:"rank,omitempty"`
	Channel             string            `json:"channel,omitempty"`
	Group               string            `json:"group,omitempty"`
	MinQ                int               `json:"minQ,omitempty"`
	PluralForm          string            `json:"pluralForm,omitempty"`
	ParentGUID          string            `json:"parentGuid,omitempty"`
	InFlight            bool              `json:"inflight,omitempty"`
	TranslationProvider string            `json:"translationProvider,omitempty"`
	Ext                 map[string]string `json:"ext,omitempty"`
}

// Translated reports whether the TU carries a target.
func (tu TU) Translated() bool { return tu.NTgt != nil }

// NotesDesc returns the notes description or "".
func (tu TU) NotesDesc() string {
	if tu.Notes == nil {
		return ""
	}
	return tu.Notes.Desc
}

// Job groups TUs produced by one provider for one language pair.
type Job struct {
	JobGUID             string            `json:"jobGuid"`
	SourceLang          string            `json:"sourceLang"`
	TargetLang          string            `json:"targetLang"`
	TranslationProvider string            `json:"translationProvider,omitempty"`
	Status              JobStatus         `json:"status"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	TMStore             string            `json:"tmStore,omitempty"`
	EstimatedCost       *float64          `json:"estimatedCost,omitempty"`
	Props               map[string]string `json:"props,omitempty"`
	TUs                 []TU              `json:"tus,omitempty"`
}

// Pair returns the canonical language pair of the job.
func (j *Job) Pair() (Pair, error) {
	return NewPair(j.SourceLang, j.TargetLang)
}

// Clone returns a copy of j without TUs.
func (j *Job) Clone() *Job {
	clone := *j
	clone.TUs = nil
	if j.Props != nil {
		clone.Props = make(map[string]string, len(j.Props))
		for k, v := range j.Props {
			clone.Props[k] = v
		}
	}
	return &clone
}

// TUKey identifies one persisted TU row.
type TUKey struct {
	GUID    string `json:"guid"`
	JobGUID string `json:"jobGuid"`
}

// Stats summarizes a language pair.
type Stats struct {
	Pair          string            `json:"pair"`
	TUs           int               `json:"tus"`
	Guids         int               `json:"guids"`
	Translated    int               `json:"translated"`
	InFlight      int               `json:"inflight"`
	Jobs          int               `json:"jobs"`
	JobsByStatus  map[JobStatus]int `json:"jobsByStatus"`
	TUsByProvider map[string]int    `json:"tusByProvider"`
}
