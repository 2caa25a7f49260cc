package domain

// Event log engine: pure functions that append or unwind update events on a
// space value. Callers own persistence; these functions never touch ambient
// state, never fabricate timestamps, and leave the input value untouched.

// ValidateEvent checks the structural invariants an event must satisfy
// before it may be appended.
func ValidateEvent(event UpdateEvent) error {
	if event.Author == "" {
		return ValidationError{Reason: "event author required"}
	}
	if event.CreatedAt == "" {
		return ValidationError{Reason: "event created_at required"}
	}
	primaries := 0
	for _, img := range event.Images {
		if img.Src == "" {
			return ValidationError{Reason: "event image missing src"}
		}
		if img.Role == RolePrimary {
			primaries++
		}
	}
	if primaries > 1 {
		return ValidationError{Reason: "event carries more than one primary image"}
	}
	return nil
}

// ApplyUpdate appends event to the space's log and applies its side effects.
// The space adopts the event's status, and taken-class actions accumulate
// onto the artist assignment keyed by the author. When appendToImages is
// set, the event's images extend the top-level image list; an event carrying
// a primary image instead has that image prepended at index 0 (the previous
// representative is demoted, not lost) with any remaining images appended.
//
// The returned space is a new value; the input is not mutated. Appended
// events are never edited afterwards, corrections are further events.
func ApplyUpdate(space Space, event UpdateEvent, appendToImages bool) (Space, error) {
	if err := ValidateEvent(event); err != nil {
		return Space{}, err
	}

	next := space.Clone()
	next.Updates = append(next.Updates, cloneEvent(event))

	if appendToImages {
		primary := event.PrimaryImage()
		for _, img := range event.Images {
			merged := cloneImage(img)
			merged.Role = RoleUnset
			if primary != nil && img.Role == RolePrimary {
				next.Images = append([]ImageRef{merged}, next.Images...)
				continue
			}
			next.Images = append(next.Images, merged)
		}
	}

	next.Status = event.Status
	if isTakenClass(event.Action) {
		applyAssignment(&next, event)
	}
	next.ModifiedBy = event.Author
	next.ModifiedAt = event.CreatedAt
	return next, nil
}

// RevertLastUpdate pops the most recent event and unwinds its side effects:
// the representative image it prepended (when still at index 0) is removed,
// and status is recomputed from the remaining log. Artist assignments
// accumulated by taken-class events are deliberately left in place; there is
// no inverse for assignment accumulation.
func RevertLastUpdate(space Space) (Space, error) {
	if len(space.Updates) == 0 {
		return Space{}, EmptyLogError{ID: space.ID}
	}

	next := space.Clone()
	popped := next.Updates[len(next.Updates)-1]
	next.Updates = next.Updates[:len(next.Updates)-1]

	if primary := popped.PrimaryImage(); primary != nil {
		if len(next.Images) > 0 && next.Images[0].Src == primary.Src {
			next.Images = next.Images[1:]
		}
	}

	next.Status = DeriveStatus(next)
	if len(next.Updates) == 0 {
		next.Updates = nil
		next.TakenBy = ""
		next.TakenAt = ""
		next.TakenNote = ""
	}
	return next, nil
}

// DeriveStatus replays the log and returns the status the space must carry:
// the last event's declared status, or StatusAvailable for an empty log.
func DeriveStatus(space Space) Status {
	if len(space.Updates) == 0 {
		return StatusAvailable
	}
	return space.Updates[len(space.Updates)-1].Status
}

func isTakenClass(action Action) bool {
	return action == ActionTaken || action == ActionInstruction
}

// applyAssignment inserts or updates the artist assignment keyed by the
// event author. Existing entries accumulate; nothing is overwritten.
func applyAssignment(space *Space, event UpdateEvent) {
	idx := -1
	for i := range space.TakenArtists {
		if space.TakenArtists[i].Name == event.Author {
			idx = i
			break
		}
	}
	if idx < 0 {
		space.TakenArtists = append(space.TakenArtists, ArtistAssignment{
			Name:    event.Author,
			TakenAt: event.CreatedAt,
		})
		idx = len(space.TakenArtists) - 1
	}
	entry := &space.TakenArtists[idx]

	if event.Text != nil && *event.Text != "" {
		switch event.Action {
		case ActionInstruction:
			entry.Instructions = append(entry.Instructions, *event.Text)
		default:
			entry.Notes = append(entry.Notes, *event.Text)
		}
	}
	for _, img := range event.Images {
		if img.Role == RoleInstruction {
			entry.InstructionImages = append(entry.InstructionImages, cloneImage(img))
		}
	}

	// Legacy single-artist fields mirror the most recent assignment.
	space.TakenBy = entry.Name
	space.TakenAt = entry.TakenAt
	if event.Text != nil && *event.Text != "" {
		space.TakenNote = *event.Text
	}
}
