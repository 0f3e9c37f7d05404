package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pbaille/codecontext/internal/config"
	"github.com/pbaille/codecontext/internal/ingest"
	"github.com/pbaille/codecontext/internal/scanner"
	"github.com/pbaille/codecontext/internal/store"
	"github.com/spf13/cobra"
)

func initCmd(a *app) *cobra.Command {
	var (
		name  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the project store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(a.root)
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := s.Initialize(cmd.Context(), name, force)
			if err != nil {
				if errors.Is(err, store.ErrAlreadyInitialized) {
					return fmt.Errorf("%w (use --force to recreate it)", err)
				}
				return err
			}

			cfgPath := filepath.Join(s.StateDir(), config.FileName)
			if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
				if err := config.Save(s.StateDir(), config.Default()); err != nil {
					return err
				}
			}

			st := newStyles(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "%s project %s in %s\n",
				st.ok.Render("Initialized"), st.title.Render(p.Name), s.StateDir())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to the directory name)")
	cmd.Flags().BoolVar(&force, "force", false, "drop and recreate an existing store")
	return cmd
}

func scanCmd(a *app) *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Record files and code patterns of the project",
		Long: `Walk the project and record its files, declaration patterns and metrics.
With --from, ingest a scanner payload (JSON) instead; "-" reads stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res *ingest.ScanResult
			if from != "" {
				data, err := readInput(cmd, from)
				if err != nil {
					return err
				}
				if res, err = ingest.DecodeScanResult(data); err != nil {
					return usageError{err}
				}
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if res == nil {
				sc, err := a.scanner()
				if err != nil {
					return err
				}
				if res, err = sc.Scan(cmd.Context()); err != nil {
					return err
				}
			}

			progress, err := ingest.Scan(cmd.Context(), s, *res)
			printProgress(cmd.OutOrStdout(), progress)
			if err != nil {
				return err
			}
			if res.Metrics != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s files, %s lines, complexity %s\n",
					humanize.Comma(int64(res.Metrics.TotalFiles)),
					humanize.Comma(int64(res.Metrics.TotalLines)),
					res.Metrics.Complexity)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "ingest a JSON scan payload from this file")
	return cmd
}

func (a *app) scanner() (*scanner.Scanner, error) {
	sc, err := scanner.New(a.root, scanner.Options{
		Exclude:       a.cfg.Scan.Exclude,
		MaxFileSize:   a.cfg.Scan.MaxFileSize,
		IncludeHidden: a.cfg.Scan.IncludeHidden,
		Logger:        a.log.Component("scanner"),
	})
	if err != nil {
		return nil, usageError{err}
	}
	return sc, nil
}

func statusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show project statistics and recent activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			status, err := s.Status(cmd.Context(), a.cfg.Status.RecentActivity)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeIndentedJSON(out, status)
			}

			st := newStyles(out)
			name := filepath.Base(s.Root())
			if status.Project != nil {
				name = status.Project.Name
			} else if status.Sidecar != nil && status.Sidecar.ProjectName != "" {
				name = status.Sidecar.ProjectName
			}

			fmt.Fprintln(out, st.title.Render(name))
			fmt.Fprintf(out, "%s%s\n", st.label.Render("Path"), s.Root())
			fmt.Fprintf(out, "%s%s\n", st.label.Render("Store size"), humanize.Bytes(uint64(status.StoreSize)))
			fmt.Fprintf(out, "%s%d\n", st.label.Render("Memories"), status.Counts.Memories)
			fmt.Fprintf(out, "%s%d\n", st.label.Render("Files"), status.Counts.Files)
			fmt.Fprintf(out, "%s%d\n", st.label.Render("Patterns"), status.Counts.Patterns)
			if p := status.Project; p != nil && p.TotalLines > 0 {
				fmt.Fprintf(out, "%s%s lines, complexity %s\n", st.label.Render("Code"),
					humanize.Comma(int64(p.TotalLines)), p.Complexity)
			}

			if len(status.Recent) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, st.title.Render("Recent activity"))
				for _, act := range status.Recent {
					fmt.Fprintf(out, "  %s %s\n",
						st.muted.Render(fmt.Sprintf("%-16s", humanize.Time(act.CreatedAt))),
						act.Description)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

func clearCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all memories, files, patterns and the project record",
		Long:  "Delete all memories, files, patterns and the project record. The activity log is kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if !yes {
				counts, err := s.Counts(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "This deletes %d memories, %d files and %d patterns. Type 'yes' to continue: ",
					counts.Memories, counts.Files, counts.Patterns)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(strings.ToLower(answer)) != "yes" {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			if err := s.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, newStyles(out).ok.Render("Store cleared."))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func reindexCmd(a *app) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Verify and rebuild the full-text index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			before, err := s.VerifyIndex(cmd.Context())
			if err != nil {
				return err
			}
			if check {
				state := "ok"
				if !before.OK() {
					state = "needs rebuild"
				}
				fmt.Fprintf(out, "Index %s: %d of %d memories indexed, %d terms, %d missing\n",
					state, before.Indexed, before.Memories, before.Terms, before.Missing)
				return nil
			}

			if err := s.RebuildIndex(cmd.Context()); err != nil {
				return err
			}
			after, err := s.VerifyIndex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Rebuilt index: %d memories, %d terms\n", after.Indexed, after.Terms)
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "only report index health")
	return cmd
}
