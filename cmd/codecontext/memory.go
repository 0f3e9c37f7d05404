package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pbaille/codecontext/internal/classifier"
	"github.com/pbaille/codecontext/internal/domain"
	"github.com/pbaille/codecontext/internal/extract"
	"github.com/pbaille/codecontext/internal/ingest"
	"github.com/pbaille/codecontext/internal/search"
	"github.com/pbaille/codecontext/internal/store"
	"github.com/spf13/cobra"
)

const contentWidth = 72

func rememberCmd(a *app) *cobra.Command {
	var (
		memType    string
		memContext string
		tags       []string
		file       string
		meta       []string
		metaJSON   string
		noClassify bool
	)

	cmd := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a memory",
		Long: `Store a memory. Content comes from the arguments, from --file, or from
stdin when the only argument is "-". Without --type the type and extra tags
are suggested from the content; #hashtags always become tags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := rememberContent(cmd, args, file)
			if err != nil {
				return err
			}

			metadata, err := parseMeta(meta, metaJSON)
			if err != nil {
				return err
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			in := ingest.MemoryInput{
				Type:     domain.MemoryType(strings.ToLower(memType)),
				Content:  content,
				Context:  memContext,
				Tags:     tags,
				Metadata: metadata,
			}

			if file != "" {
				if _, ok := in.Metadata.Get("source"); !ok {
					if in.Metadata == nil {
						in.Metadata = domain.Metadata{}
					}
					in.Metadata["source"] = domain.String(file)
				}
			}
			if in.Type != "" && !in.Type.Known() {
				a.log.Warn().Str("type", string(in.Type)).Msg("unrecognized memory type carries no ranking weight")
			}

			suggestion, err := classifier.New().Annotate(cmd.Context(), s, &in, !noClassify)
			if err != nil {
				return err
			}
			if suggestion != nil {
				a.log.Debug().
					Str("type", string(suggestion.Type)).
					Float64("confidence", suggestion.Confidence).
					Strs("tags", suggestion.TagNames()).
					Msg("classified memory")
			}

			m, err := ingest.Remember(cmd.Context(), s, in)
			if err != nil {
				return err
			}
			if err := a.repairIndex(cmd.Context(), s); err != nil {
				return err
			}

			st := newStyles(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
				st.ok.Render("Remembered"), st.memoryType(m.Type), st.muted.Render(m.ID[:8]))
			if len(m.Tags) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  tags: %s\n", strings.Join(m.Tags, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&memType, "type", "t", "", "memory type (conversation, decision, pattern, note, issue)")
	cmd.Flags().StringVarP(&memContext, "context", "c", "", "where or why this was noted")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "comma separated tags")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read content from a local text or HTML file")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata entry key=value (repeatable)")
	cmd.Flags().StringVar(&metaJSON, "meta-json", "", "metadata as a JSON object")
	cmd.Flags().BoolVar(&noClassify, "no-classify", false, "do not suggest a type or tags")
	return cmd
}

func rememberContent(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case file != "" && len(args) > 0:
		return "", usagef("give content either as arguments or with --file, not both")
	case file != "":
		if extract.IsURL(file) {
			return "", usagef("--file takes a local path, got %q", file)
		}
		text, err := extract.File(file)
		if err != nil {
			return "", usagef("--file: %v", err)
		}
		return text, nil
	case len(args) == 1 && args[0] == "-":
		text, err := extract.Reader(cmd.InOrStdin(), "stdin")
		if err != nil {
			return "", usagef("stdin: %v", err)
		}
		return text, nil
	case len(args) == 0:
		return "", usagef("content is required")
	}
	return strings.Join(args, " "), nil
}

// parseMeta builds metadata from key=value pairs and an optional JSON
// object. Values that parse as numbers or booleans keep that kind.
func parseMeta(pairs []string, raw string) (domain.Metadata, error) {
	md := domain.Metadata{}
	if raw != "" {
		parsed, err := domain.ParseMetadata([]byte(raw))
		if err != nil {
			return nil, usagef("--meta-json: %v", err)
		}
		for k, v := range parsed {
			md[k] = v
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, usagef("--meta wants key=value, got %q", pair)
		}
		switch {
		case value == "true" || value == "false":
			md[key] = domain.Bool(value == "true")
		default:
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				md[key] = domain.Number(n)
			} else {
				md[key] = domain.String(value)
			}
		}
	}

	if len(md) == 0 {
		return nil, nil
	}
	return md, nil
}

func recallCmd(a *app) *cobra.Command {
	var (
		memType string
		since   string
		limit   int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Search memories, best match first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := search.Query{
				Text:  strings.Join(args, " "),
				Type:  domain.MemoryType(strings.ToLower(memType)),
				Limit: a.cfg.Search.DefaultLimit,
			}
			if cmd.Flags().Changed("limit") {
				if limit < 1 {
					return usagef("--limit must be positive")
				}
				q.Limit = limit
			}

			var err error
			if q.Since, err = search.ParseSince(since, time.Now()); err != nil {
				return usageError{err}
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			results, err := search.Search(cmd.Context(), s, q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeIndentedJSON(out, results)
			}

			if len(results) == 0 {
				fmt.Fprintln(out, "No matching memories.")
				return nil
			}

			st := newStyles(out)
			for i, r := range results {
				m := r.Memory
				fmt.Fprintf(out, "%2d. %s %s %s\n", i+1,
					st.memoryType(m.Type),
					st.content.Render(store.Summarize(m.Content, contentWidth)),
					st.score.Render(fmt.Sprintf("%.1f", r.Score)))

				details := []string{humanize.Time(m.CreatedAt), m.ID[:8]}
				if m.Context != "" {
					details = append(details, store.Summarize(m.Context, 40))
				}
				if len(m.Tags) > 0 {
					details = append(details, "#"+strings.Join(m.Tags, " #"))
				}
				if src, ok := m.Metadata.Get("source"); ok {
					details = append(details, src)
				}
				fmt.Fprintf(out, "    %s\n", st.muted.Render(strings.Join(details, " · ")))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&memType, "type", "t", "", "only this memory type")
	cmd.Flags().StringVar(&since, "since", "", "only memories newer than this (7d, 24h, 2025-06-01)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}
