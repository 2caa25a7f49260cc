package projection

import (
	"sort"

	"spacecore/pkg/domain"
)

// Timeline entry kinds.
const (
	EntryOriginal = "original"
	EntryUpdate   = "update"
)

// TimelineEvent is a single dated entry in the chronological feed built from
// all spaces. TakenAt is the sort key; entries without a usable date are
// never emitted.
type TimelineEvent struct {
	SpaceID int               `json:"space_id"`
	Type    string            `json:"type"`
	Author  string            `json:"author"`
	Text    string            `json:"text,omitempty"`
	TakenAt string            `json:"taken_at"`
	Status  domain.Status     `json:"status,omitempty"`
	Images  []domain.ImageRef `json:"images"`
}

// ExportTimeline flattens every space into dated entries and returns them in
// ascending order of TakenAt. The sort is stable: entries sharing a date keep
// their insertion order (spaces in input order, the original entry before the
// space's update entries, update entries in log order).
func ExportTimeline(spaces []domain.Space) []TimelineEvent {
	entries := make([]TimelineEvent, 0, len(spaces))
	for _, space := range spaces {
		if entry, ok := originalEntry(space); ok {
			entries = append(entries, entry)
		}
		for _, event := range space.Updates {
			if entry, ok := updateEntry(space, event); ok {
				entries = append(entries, entry)
			}
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TakenAt < entries[j].TakenAt
	})
	return entries
}

// originalEntry emits the pre-event state of a space. It exists only when
// the representative image carries a capture timestamp; spaces recorded
// without one contribute no original entry.
func originalEntry(space domain.Space) (TimelineEvent, bool) {
	if len(space.Images) == 0 {
		return TimelineEvent{}, false
	}
	img := space.Images[0]
	if img.TakenAt == nil || *img.TakenAt == "" {
		return TimelineEvent{}, false
	}
	author := space.CreatedBy
	if author == "" {
		author = "Original"
	}
	return TimelineEvent{
		SpaceID: space.ID,
		Type:    EntryOriginal,
		Author:  author,
		Text:    "Original state",
		TakenAt: *img.TakenAt,
		Images:  []domain.ImageRef{img},
	}, true
}

// updateEntry emits one entry per event that carries at least one image and
// a creation timestamp. The entry is dated by the primary image's capture
// time when known, falling back to the event's creation time.
func updateEntry(space domain.Space, event domain.UpdateEvent) (TimelineEvent, bool) {
	if len(event.Images) == 0 || event.CreatedAt == "" {
		return TimelineEvent{}, false
	}

	primaryIdx := 0
	for i := range event.Images {
		if event.Images[i].Role == domain.RolePrimary {
			primaryIdx = i
			break
		}
	}
	primary := event.Images[primaryIdx]

	takenAt := event.CreatedAt
	if primary.TakenAt != nil && *primary.TakenAt != "" {
		takenAt = *primary.TakenAt
	}

	images := []domain.ImageRef{primary}
	for i, img := range event.Images {
		if i == primaryIdx {
			continue
		}
		images = append(images, img)
	}

	entry := TimelineEvent{
		SpaceID: space.ID,
		Type:    EntryUpdate,
		Author:  event.Author,
		TakenAt: takenAt,
		Status:  event.Status,
		Images:  images,
	}
	if event.Text != nil {
		entry.Text = *event.Text
	}
	return entry, true
}
