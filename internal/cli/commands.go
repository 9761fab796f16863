package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const (
	uploadedByTag = "uploadedBy"
	cliUploader   = "CLI"
	timeLayout    = "2006-01-02 15:04:05"
)

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd.Context(), func(store Store) error {
				files, err := store.ListFiles(cmd.Context())
				if err != nil {
					return fmt.Errorf("list files: %w", err)
				}
				out := cmd.OutOrStdout()
				if len(files) == 0 {
					_, err := fmt.Fprintln(out, warnStyle.Render("No files stored"))
					return err
				}
				_, err = fmt.Fprintln(out, renderTable(files))
				return err
			})
		},
	}
}

func renderTable(files []domain.FileMetadata) string {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{
			f.ID,
			f.Name,
			humanize.IBytes(uint64(f.SizeBytes)), // #nosec G115
			f.ContentType,
			f.UploadedAt.Local().Format(timeLayout),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("ID", "Name", "Size", "Type", "Uploaded").
		Rows(rows...).
		String()
}

func (c *cli) uploadCommand() *cobra.Command {
	var (
		contentType string
		rawTags     []string
	)
	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := parseTags(rawTags)
			if err != nil {
				return err
			}
			tags[uploadedByTag] = cliUploader

			path := args[0]
			f, err := os.Open(path) // #nosec G304
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer func() { _ = f.Close() }()

			return c.withStore(cmd.Context(), func(store Store) error {
				meta, err := store.Upload(cmd.Context(), f, domain.UploadRequest{
					Name:        filepath.Base(path),
					ContentType: contentType,
					Tags:        tags,
				})
				if err != nil {
					return fmt.Errorf("upload %s: %w", path, err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(
					fmt.Sprintf("Uploaded %s (%s) as %s", meta.Name, humanize.IBytes(uint64(meta.SizeBytes)), meta.ID))) // #nosec G115
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&contentType, "type", "t", "", "content type, detected from the content when empty")
	cmd.Flags().StringArrayVar(&rawTags, "tag", nil, "tag as key=value, repeatable")
	return cmd
}

func parseTags(raw []string) (map[string]string, error) {
	tags := make(map[string]string, len(raw)+1)
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid tag %q, want key=value", kv)
		}
		tags[key] = value
	}
	return tags, nil
}

func (c *cli) downloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download <id> [output]",
		Short: "Download a file; output defaults to its stored name, - writes to stdout",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return c.withStore(cmd.Context(), func(store Store) error {
				meta, body, err := store.Download(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("download %s: %w", id, err)
				}
				defer func() { _ = body.Close() }()

				output := filepath.Base(meta.Name)
				if len(args) == 2 {
					output = args[1]
				}
				if output == "-" {
					_, err := io.Copy(cmd.OutOrStdout(), body)
					return err
				}
				if output == "" || output == "." || output == string(filepath.Separator) {
					output = meta.ID
				}

				if err := writeFile(output, body); err != nil {
					return fmt.Errorf("download %s: %w", id, err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(
					fmt.Sprintf("Downloaded %s to %s", meta.Name, output)))
				return err
			})
		},
	}
}

// writeFile streams r into a temporary sibling of path and renames it into
// place, so a failed download never leaves a truncated file behind.
func writeFile(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".part-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (c *cli) deleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return c.withStore(cmd.Context(), func(store Store) error {
				meta, err := store.Stat(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				if !yes {
					ok, err := c.opts.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
						fmt.Sprintf("Delete %s (%s)?", meta.Name, meta.ID))
					if err != nil {
						return err
					}
					if !ok {
						_, err := fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("Deletion cancelled"))
						return err
					}
				}
				if err := store.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Deleted "+meta.ID))
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func (c *cli) reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Drop metadata whose chunks are gone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd.Context(), func(store Store) error {
				report, err := store.Reconcile(cmd.Context())
				if err != nil {
					return fmt.Errorf("reconcile: %w", err)
				}
				line := fmt.Sprintf("Scanned %d, removed %d, failed %d", report.Scanned, report.Removed, report.Failed)
				style := successStyle
				if report.Failed > 0 {
					style = warnStyle
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), style.Render(line)); err != nil {
					return err
				}
				if report.Failed > 0 {
					return errors.New("some entries could not be checked")
				}
				return nil
			})
		},
	}
}
