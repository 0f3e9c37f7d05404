package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pbaille/codecontext/internal/export"
	"github.com/spf13/cobra"
)

func exportCmd(a *app) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the store as JSON or Markdown",
		Long: `Export the store. JSON is the structured form that 'import' reads back;
Markdown is a readable report. --output - writes to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return usageError{err}
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			snap, err := export.Collect(cmd.Context(), s, a.cfg.Status.RecentActivity)
			if err != nil {
				return err
			}
			data, err := export.Render(snap, f)
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if output == "" {
				output = filepath.Join(a.root, export.DefaultFileName(f, time.Now()))
			}
			if err := export.WriteFile(output, data); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d memories to %s (%s)\n",
				len(snap.Memories), output, humanize.Bytes(uint64(len(data))))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "json or markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file")
	return cmd
}

func importCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import a JSON export into this project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := export.Import(cmd.Context(), s, data)
			if err != nil {
				return err
			}
			if err := a.repairIndex(cmd.Context(), s); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d memories, %d patterns, %d files\n",
				res.Memories, res.Patterns, res.Files)
			return nil
		},
	}
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
