// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by spacecore.
package domain

import "time"

// Timestamps are carried as ISO-8601 strings without a zone suffix so that
// chronological ordering reduces to lexicographic comparison and absent
// capture times stay nil instead of being fabricated.
const TimestampLayout = "2006-01-02T15:04:05"

// FormatTimestamp renders t in the canonical store timestamp format (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ImageRole identifies the function of an image within an update event.
type ImageRole string

// Image roles recognised by the event log and projections.
const (
	// RolePrimary marks the representative image of an event. At most one
	// image per event may carry it.
	RolePrimary ImageRole = "primary"
	// RoleSupplementary marks additional images shown after the primary.
	RoleSupplementary ImageRole = "supplementary"
	// RoleInstruction marks images attached to artist instructions.
	RoleInstruction ImageRole = "instruction"
	// RoleUpdate marks plain update photos.
	RoleUpdate ImageRole = "update"
	// RoleUnset is the zero value for images without an assigned role.
	RoleUnset ImageRole = ""
)

// ImageRef describes one photo and optional metadata. TakenAt is the EXIF
// capture time when known; nil means unknown and is never defaulted here.
type ImageRef struct {
	Src     string    `json:"src"`
	TakenAt *string   `json:"taken_at"`
	Role    ImageRole `json:"role,omitempty"`
}

// Action tags the kind of state change an update event records. The set is
// open: unknown tags round-trip through the store without breaking replay.
type Action string

// Well-known event actions.
const (
	ActionCreate      Action = "create"
	ActionInstruction Action = "instruction"
	ActionTaken       Action = "taken"
	ActionUpdate      Action = "update"
	ActionPublished   Action = "published"
	ActionOriginal    Action = "original"
)

// Status labels the visible lifecycle state of a space.
type Status string

// Canonical space statuses.
const (
	StatusAvailable   Status = "available"
	StatusDraft       Status = "draft"
	StatusTaken       Status = "taken"
	StatusPublished   Status = "published"
	StatusInstruction Status = "instruction"
)

// UpdateEvent is one immutable-once-appended state change applied to a
// space. Later corrections are new events; appended events are never edited.
type UpdateEvent struct {
	Author    string      `json:"author"`
	Text      *string     `json:"text"`
	Action    Action      `json:"action"`
	Images    []ImageRef  `json:"images"`
	CreatedAt string      `json:"created_at"`
	Status    Status      `json:"status"`
	Related   []int       `json:"related,omitempty"`
}

// PrimaryImage returns the event image tagged RolePrimary, or nil.
func (e UpdateEvent) PrimaryImage() *ImageRef {
	for i := range e.Images {
		if e.Images[i].Role == RolePrimary {
			img := e.Images[i]
			return &img
		}
	}
	return nil
}

// ArtistAssignment records one artist working on a space. Entries are keyed
// by Name within a space; re-marking the same name appends to the existing
// entry instead of duplicating it.
type ArtistAssignment struct {
	Name              string     `json:"name"`
	TakenAt           string     `json:"taken_at"`
	Notes             []string   `json:"notes,omitempty"`
	Instructions      []string   `json:"instructions,omitempty"`
	InstructionImages []ImageRef `json:"instruction_images,omitempty"`
}

// Space is the aggregate entity: identity, the canonical current photo set,
// cached status, artist assignments, and the ordered update log.
//
// Images[0] is the representative image unless superseded by a prepend.
// Status always equals the status of the last event in Updates, or
// StatusAvailable when the log is empty.
type Space struct {
	ID           int                `json:"id"`
	Description  string             `json:"description,omitempty"`
	Images       []ImageRef         `json:"images"`
	Status       Status             `json:"status"`
	TakenBy      string             `json:"taken_by,omitempty"`
	TakenAt      string             `json:"taken_at,omitempty"`
	TakenNote    string             `json:"taken_note,omitempty"`
	TakenArtists []ArtistAssignment `json:"taken_artists,omitempty"`
	Updates      []UpdateEvent      `json:"updates"`
	CreatedBy    string             `json:"created_by,omitempty"`
	CreatedAt    string             `json:"created_at,omitempty"`
	ModifiedBy   string             `json:"modified_by,omitempty"`
	ModifiedAt   string             `json:"modified_at,omitempty"`
}

// Clone returns a deep copy so value snapshots never alias live state.
func (s Space) Clone() Space {
	cp := s
	cp.Images = cloneImages(s.Images)
	cp.TakenArtists = make([]ArtistAssignment, len(s.TakenArtists))
	for i, a := range s.TakenArtists {
		cp.TakenArtists[i] = cloneAssignment(a)
	}
	if len(cp.TakenArtists) == 0 {
		cp.TakenArtists = nil
	}
	cp.Updates = make([]UpdateEvent, len(s.Updates))
	for i, u := range s.Updates {
		cp.Updates[i] = cloneEvent(u)
	}
	if len(cp.Updates) == 0 {
		cp.Updates = nil
	}
	return cp
}

func cloneImages(in []ImageRef) []ImageRef {
	if in == nil {
		return nil
	}
	out := make([]ImageRef, len(in))
	for i, img := range in {
		out[i] = cloneImage(img)
	}
	return out
}

func cloneImage(img ImageRef) ImageRef {
	cp := img
	if img.TakenAt != nil {
		v := *img.TakenAt
		cp.TakenAt = &v
	}
	return cp
}

func cloneEvent(e UpdateEvent) UpdateEvent {
	cp := e
	cp.Images = cloneImages(e.Images)
	cp.Related = append([]int(nil), e.Related...)
	if e.Text != nil {
		v := *e.Text
		cp.Text = &v
	}
	return cp
}

func cloneAssignment(a ArtistAssignment) ArtistAssignment {
	cp := a
	cp.Notes = append([]string(nil), a.Notes...)
	cp.Instructions = append([]string(nil), a.Instructions...)
	cp.InstructionImages = cloneImages(a.InstructionImages)
	return cp
}

// Change describes a mutation applied to a space during a transaction.
type Change struct {
	Action ChangeAction
	Before *Space
	After  *Space
}

// ChangeAction indicates the type of modification performed.
type ChangeAction string

// Change actions captured in the audit trail.
const (
	ChangeCreate ChangeAction = "create"
	ChangeAppend ChangeAction = "append"
	ChangeRevert ChangeAction = "revert"
	ChangeUpdate ChangeAction = "update"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	SpaceID  int
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
