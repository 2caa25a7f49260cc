// Command mark-taken records an artist claim on a space from the command
// line, the same operation the admin UI performs through /mark_taken.
// Instruction text and image files can accompany the claim.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"spacecore/internal/blob"
	"spacecore/internal/core"
	"spacecore/internal/exif"
	"spacecore/internal/projection"
	"spacecore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mark-taken", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		id               int
		by               string
		date             string
		note             string
		publish          bool
		instructions     string
		instructionFiles string
		viewsDir         string
	)
	fs.IntVar(&id, "id", 0, "space id")
	fs.StringVar(&by, "by", "Unknown", "artist name")
	fs.StringVar(&date, "date", "", "claim timestamp, defaults to now")
	fs.StringVar(&note, "note", "", "optional note")
	fs.BoolVar(&publish, "publish", false, "mark as published")
	fs.StringVar(&instructions, "instructions", "", "instruction text for the artist")
	fs.StringVar(&instructionFiles, "instruction-files", "", "comma separated image paths to attach as instructions")
	fs.StringVar(&viewsDir, "views", ".", "directory for derived view files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if id <= 0 {
		fmt.Fprintln(stderr, "mark-taken: -id is required")
		return 2
	}

	if err := run(id, by, date, note, instructions, instructionFiles, publish, viewsDir); err != nil {
		fmt.Fprintf(stderr, "mark-taken: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "space %d marked taken by %s\n", id, by)
	return 0
}

func run(id int, by, date, note, instructions, instructionFiles string, publish bool, viewsDir string) error {
	_ = godotenv.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	store, err := core.OpenPersistentStore(core.DefaultRulesEngine(), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	service := core.NewService(store,
		core.WithLogger(logger),
		core.WithProjectionWriter(projection.NewWriter(viewsDir, logger)),
	)

	req := core.TakeRequest{
		Artist:       by,
		Note:         note,
		At:           date,
		Publish:      publish,
		Instructions: instructions,
	}

	if instructionFiles != "" {
		blobs, err := blob.Open(ctx)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		req.InstructionImages, err = uploadInstructionFiles(ctx, blobs, id, instructionFiles)
		if err != nil {
			return err
		}
	}

	_, _, err = service.MarkTaken(ctx, id, req)
	return err
}

func uploadInstructionFiles(ctx context.Context, blobs blob.Store, id int, list string) ([]domain.ImageRef, error) {
	folder := fmt.Sprintf("instruction-%d-%s", id, strings.Split(uuid.NewString(), "-")[0])
	var refs []domain.ImageRef
	for _, path := range strings.Split(list, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		name := filepath.Base(path)
		key := folder + "/" + name
		_, err = blobs.Put(ctx, key, file, blob.PutOptions{
			ContentType: mime.TypeByExtension(filepath.Ext(name)),
		})
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", name, err)
		}

		takenAt := exif.ExtractTakenAt(ctx, path)
		if takenAt == nil {
			fallback := domain.FormatTimestamp(time.Now().UTC())
			takenAt = &fallback
		}
		refs = append(refs, domain.ImageRef{Src: "img/" + key, TakenAt: takenAt})
	}
	return refs, nil
}
