package projection

import (
	"spacecore/pkg/domain"
)

// ArtistView is the per-artist slice of a minimal view. FinalImage is the
// last image of that artist's most recent published event, or null.
type ArtistView struct {
	Name              string            `json:"name"`
	TakenAt           string            `json:"taken_at"`
	Instructions      []string          `json:"instructions,omitempty"`
	InstructionImages []domain.ImageRef `json:"instruction_images,omitempty"`
	FinalImage        *domain.ImageRef  `json:"final_image"`
}

// MinimalView is the public read model of a space: current state only, no
// event log.
type MinimalView struct {
	ID            int              `json:"id"`
	Description   string           `json:"description"`
	Status        domain.Status    `json:"status"`
	OriginalImage *domain.ImageRef `json:"original_image"`
	Artists       []ArtistView     `json:"artist"`
}

// ExportMinimal projects every space to its minimal view. The input is not
// mutated; image references in the output are copies.
func ExportMinimal(spaces []domain.Space) []MinimalView {
	views := make([]MinimalView, 0, len(spaces))
	for _, space := range spaces {
		view := MinimalView{
			ID:          space.ID,
			Description: space.Description,
			Status:      space.Status,
			Artists:     []ArtistView{},
		}
		if len(space.Images) > 0 {
			img := space.Images[0]
			view.OriginalImage = &img
		}
		for _, assignment := range space.TakenArtists {
			view.Artists = append(view.Artists, ArtistView{
				Name:              assignment.Name,
				TakenAt:           assignment.TakenAt,
				Instructions:      append([]string(nil), assignment.Instructions...),
				InstructionImages: append([]domain.ImageRef(nil), assignment.InstructionImages...),
				FinalImage:        finalImage(space, assignment.Name),
			})
		}
		views = append(views, view)
	}
	return views
}

// finalImage scans the log backwards for the artist's most recent published
// event that carries images and returns the last of them.
func finalImage(space domain.Space, artist string) *domain.ImageRef {
	for i := len(space.Updates) - 1; i >= 0; i-- {
		event := space.Updates[i]
		if event.Status != domain.StatusPublished || event.Author != artist {
			continue
		}
		if len(event.Images) == 0 {
			continue
		}
		img := event.Images[len(event.Images)-1]
		return &img
	}
	return nil
}
