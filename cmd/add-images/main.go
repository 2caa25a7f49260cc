// Command add-images bulk-imports a directory of image files, either as a
// new space or as an update appended to an existing one. Capture timestamps
// are read from EXIF data where available. A meta.json file in the directory
// can supply the event text, action, author, and primary filename; flags
// take precedence over it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
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

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// dirMeta is the optional meta.json placed alongside the images.
type dirMeta struct {
	Author  string `json:"author,omitempty"`
	Text    string `json:"text,omitempty"`
	Action  string `json:"action,omitempty"`
	Status  string `json:"status,omitempty"`
	Primary string `json:"primary,omitempty"`
}

func loadDirMeta(dir string) (dirMeta, error) {
	var meta dirMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if os.IsNotExist(err) {
		return meta, nil
	}
	if err != nil {
		return meta, fmt.Errorf("read meta.json: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse meta.json: %w", err)
	}
	return meta, nil
}

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("add-images", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		dir      string
		author   string
		text     string
		status   string
		primary  string
		id       int
		createN  bool
		noAppend bool
		viewsDir string
	)
	fs.StringVar(&dir, "dir", "", "directory of image files to import")
	fs.StringVar(&author, "author", "Unknown", "event author")
	fs.StringVar(&text, "text", "", "event text")
	fs.StringVar(&status, "status", string(domain.StatusDraft), "event status")
	fs.StringVar(&primary, "primary", "", "filename of the primary image")
	fs.IntVar(&id, "id", 0, "space id to append to")
	fs.BoolVar(&createN, "new", false, "create a new space instead of appending")
	fs.BoolVar(&noAppend, "no-append-to-images", false, "keep the event images out of the space image list")
	fs.StringVar(&viewsDir, "views", ".", "directory for derived view files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if dir == "" {
		fmt.Fprintln(stderr, "add-images: -dir is required")
		return 2
	}
	if !createN && id <= 0 {
		fmt.Fprintln(stderr, "add-images: either -new or -id is required")
		return 2
	}

	spaceID, err := run(dir, author, text, status, primary, id, createN, noAppend, viewsDir)
	if err != nil {
		fmt.Fprintf(stderr, "add-images: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "imported %s into space %d\n", dir, spaceID)
	return 0
}

func run(dir, author, text, status, primary string, id int, createNew, noAppend bool, viewsDir string) (int, error) {
	_ = godotenv.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		return 0, err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	meta, err := loadDirMeta(dir)
	if err != nil {
		return 0, err
	}
	if author == "Unknown" && meta.Author != "" {
		author = meta.Author
	}
	if text == "" {
		text = meta.Text
	}
	if status == string(domain.StatusDraft) && meta.Status != "" {
		status = meta.Status
	}
	if primary == "" {
		primary = meta.Primary
	}
	action := domain.ActionUpdate
	if meta.Action != "" {
		action = domain.Action(meta.Action)
	}

	store, err := core.OpenPersistentStore(core.DefaultRulesEngine(), logger)
	if err != nil {
		return 0, fmt.Errorf("open store: %w", err)
	}
	blobs, err := blob.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("open blob store: %w", err)
	}
	service := core.NewService(store,
		core.WithLogger(logger),
		core.WithProjectionWriter(projection.NewWriter(viewsDir, logger)),
	)

	images, err := importDirectory(ctx, blobs, dir, primary)
	if err != nil {
		return 0, err
	}
	if len(images) == 0 {
		return 0, fmt.Errorf("no image files found in %s", dir)
	}

	if createNew {
		created, _, err := service.CreateSpace(ctx, core.Space{
			Description: text,
			Images:      stripRoles(images),
			CreatedBy:   author,
		})
		if err != nil {
			return 0, err
		}
		return created.ID, nil
	}

	event := core.UpdateEvent{
		Author: author,
		Action: action,
		Status: domain.Status(status),
		Images: images,
	}
	if text != "" {
		event.Text = &text
	}
	updated, _, err := service.AppendUpdate(ctx, id, event, !noAppend)
	if err != nil {
		return 0, err
	}
	return updated.ID, nil
}

// importDirectory uploads the directory's image files in name order and
// returns their references, primary first when one is named.
func importDirectory(ctx context.Context, blobs blob.Store, dir, primary string) ([]domain.ImageRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	folder := filepath.Base(dir) + "-" + strings.Split(uuid.NewString(), "-")[0]
	refs := make([]domain.ImageRef, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
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
		ref := domain.ImageRef{Src: "img/" + key, TakenAt: takenAt, Role: domain.RoleSupplementary}
		if name == primary {
			ref.Role = domain.RolePrimary
		}
		refs = append(refs, ref)
	}

	// Primary leads the event image list.
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Role == domain.RolePrimary && refs[j].Role != domain.RolePrimary
	})
	return refs, nil
}

func stripRoles(refs []domain.ImageRef) []domain.ImageRef {
	out := make([]domain.ImageRef, len(refs))
	for i, ref := range refs {
		ref.Role = domain.RoleUnset
		out[i] = ref
	}
	return out
}
