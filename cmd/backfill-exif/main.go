// Command backfill-exif fills in missing capture timestamps on stored
// images by re-reading their EXIF data from the blob store. Images that
// already carry a timestamp are left untouched.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"spacecore/internal/blob"
	"spacecore/internal/core"
	"spacecore/internal/exif"
	"spacecore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("backfill-exif", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	filled, err := run(dryRun)
	if err != nil {
		fmt.Fprintf(stderr, "backfill-exif: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "filled %d timestamps\n", filled)
	return 0
}

func run(dryRun bool) (int, error) {
	_ = godotenv.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		return 0, err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	store, err := core.OpenPersistentStore(core.DefaultRulesEngine(), logger)
	if err != nil {
		return 0, fmt.Errorf("open store: %w", err)
	}
	blobs, err := blob.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("open blob store: %w", err)
	}

	filled := 0
	for _, space := range store.ListSpaces() {
		updated, n := backfillSpace(ctx, blobs, space, logger)
		if n == 0 {
			continue
		}
		filled += n
		if dryRun {
			continue
		}
		_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.UpdateSpace(updated.ID, func(s *domain.Space) error {
				s.Images = updated.Images
				s.Updates = updated.Updates
				return nil
			})
			return err
		})
		if err != nil {
			return filled, fmt.Errorf("space %d: %w", updated.ID, err)
		}
	}
	return filled, nil
}

// backfillSpace fills missing timestamps across the space's image list and
// its event images. Returns the modified copy and the number filled.
func backfillSpace(ctx context.Context, blobs blob.Store, space domain.Space, logger *zap.Logger) (domain.Space, int) {
	out := space.Clone()
	filled := 0
	for i := range out.Images {
		if fillTimestamp(ctx, blobs, &out.Images[i], logger) {
			filled++
		}
	}
	for i := range out.Updates {
		for j := range out.Updates[i].Images {
			if fillTimestamp(ctx, blobs, &out.Updates[i].Images[j], logger) {
				filled++
			}
		}
	}
	return out, filled
}

func fillTimestamp(ctx context.Context, blobs blob.Store, ref *domain.ImageRef, logger *zap.Logger) bool {
	if ref.TakenAt != nil && *ref.TakenAt != "" {
		return false
	}
	taken := extractFromBlob(ctx, blobs, ref.Src)
	if taken == nil {
		logger.Warn("no exif timestamp", zap.String("src", ref.Src))
		return false
	}
	ref.TakenAt = taken
	return true
}

// extractFromBlob copies the blob to a temp file so exiftool can read it.
func extractFromBlob(ctx context.Context, blobs blob.Store, src string) *string {
	key := strings.TrimPrefix(src, "img/")
	_, rc, err := blobs.Get(ctx, key)
	if err != nil {
		return nil
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "backfill-*")
	if err != nil {
		return nil
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return nil
	}
	tmp.Close()
	return exif.ExtractTakenAt(ctx, tmp.Name())
}
