// Command export-views regenerates the derived view files from the current
// store contents without going through the admin server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"spacecore/internal/core"
	"spacecore/internal/projection"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export-views", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var outDir string
	fs.StringVar(&outDir, "out", ".", "output directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(outDir); err != nil {
		fmt.Fprintf(stderr, "export-views: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "views written to %s\n", outDir)
	return 0
}

func run(outDir string) error {
	_ = godotenv.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := core.OpenPersistentStore(core.DefaultRulesEngine(), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	service := core.NewService(store,
		core.WithLogger(logger),
		core.WithProjectionWriter(projection.NewWriter(outDir, logger)),
	)
	return service.RegenerateProjections(context.Background())
}
