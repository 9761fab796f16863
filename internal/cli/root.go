// Package cli implements blobctl, the command line client of the blob store.
// It opens the same storage layer the HTTP API uses.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/anthanhphan/go-blob-store/internal/storage/app"
	"github.com/anthanhphan/go-blob-store/internal/storage/config"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/spf13/cobra"
)

// Store is a blob store the CLI owns for the duration of one command.
type Store interface {
	port.BlobStore
	Close() error
}

// Options wires the CLI to its environment.
type Options struct {
	Open    func(ctx context.Context, configPath string) (Store, error)
	Confirm func(in io.Reader, out io.Writer, prompt string) (bool, error)
	In      io.Reader
	Out     io.Writer
	Err     io.Writer
}

// DefaultOptions opens the configured store and talks to the terminal.
func DefaultOptions() Options {
	return Options{
		Open:    openStore,
		Confirm: confirm,
		In:      os.Stdin,
		Out:     os.Stdout,
		Err:     os.Stderr,
	}
}

func openStore(ctx context.Context, configPath string) (Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.InitLogger(&cfg.Logger)
	return app.Open(ctx, cfg)
}

type cli struct {
	opts       Options
	configPath string
}

// NewRootCommand builds the blobctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	c := &cli{opts: opts}

	root := &cobra.Command{
		Use:           "blobctl",
		Short:         "Manage files in the chunked blob store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to configuration file")

	root.AddCommand(
		c.listCommand(),
		c.uploadCommand(),
		c.downloadCommand(),
		c.deleteCommand(),
		c.reconcileCommand(),
	)
	return root
}

// withStore opens the store, runs fn and closes the store again.
func (c *cli) withStore(ctx context.Context, fn func(Store) error) error {
	store, err := c.opts.Open(ctx, c.configPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warnw("Failed to close store", "error", closeErr.Error())
		}
	}()
	return fn(store)
}

// Execute runs blobctl with args and returns the process exit code.
func Execute(ctx context.Context, opts Options, args []string) int {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(opts.Err, errorStyle.Render("Error: "+err.Error()))
		return 1
	}
	return 0
}
