// Command optimize-images generates quarter-size JPEG thumbnails for stored
// images that do not have one yet. Thumbnails live under the thumbs/ prefix
// in the blob store; failures on individual files are logged and skipped.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"spacecore/internal/blob"
	"spacecore/internal/media"
)

const thumbPrefix = "thumbs/"

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("optimize-images", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var prefix string
	fs.StringVar(&prefix, "prefix", "", "only process keys under this prefix")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	made, err := run(prefix)
	if err != nil {
		fmt.Fprintf(stderr, "optimize-images: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "generated %d thumbnails\n", made)
	return 0
}

func run(prefix string) (int, error) {
	_ = godotenv.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		return 0, err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	blobs, err := blob.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("open blob store: %w", err)
	}

	infos, err := blobs.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list blobs: %w", err)
	}

	made := 0
	for _, info := range infos {
		if strings.HasPrefix(info.Key, thumbPrefix) {
			continue
		}
		thumbKey := thumbPrefix + info.Key
		if _, err := blobs.Head(ctx, thumbKey); err == nil {
			continue
		}
		if err := makeThumbnail(ctx, blobs, info.Key, thumbKey); err != nil {
			logger.Warn("thumbnail failed", zap.String("key", info.Key), zap.Error(err))
			continue
		}
		made++
	}
	return made, nil
}

func makeThumbnail(ctx context.Context, blobs blob.Store, key, thumbKey string) error {
	_, rc, err := blobs.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	thumb, err := media.Thumbnail(rc)
	if err != nil {
		return err
	}
	_, err = blobs.Put(ctx, thumbKey, bytes.NewReader(thumb), blob.PutOptions{
		ContentType: "image/jpeg",
	})
	return err
}
