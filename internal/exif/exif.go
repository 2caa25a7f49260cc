// Package exif extracts capture timestamps from image files by shelling out
// to exiftool. Extraction is best effort: any failure (missing binary,
// unreadable file, absent tag) yields nil so callers can fall back to their
// own timestamp.
package exif

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"spacecore/pkg/domain"
)

// exiftool prints DateTimeOriginal as "2006:01:02 15:04:05".
const exiftoolLayout = "2006:01:02 15:04:05"

var execCommand = exec.CommandContext

// ExtractTakenAt returns the capture time of the image at path as an
// ISO-8601 string, or nil when it cannot be determined.
func ExtractTakenAt(ctx context.Context, path string) *string {
	cmd := execCommand(ctx, "exiftool", "-s3", "-DateTimeOriginal", path)
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	return ParseTimestamp(string(out))
}

// ParseTimestamp converts an exiftool timestamp line to ISO-8601, returning
// nil for anything unparseable.
func ParseTimestamp(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	t, err := time.Parse(exiftoolLayout, trimmed)
	if err != nil {
		return nil
	}
	iso := domain.FormatTimestamp(t)
	return &iso
}
