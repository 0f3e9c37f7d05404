package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pbaille/codecontext/internal/domain"
	"github.com/pbaille/codecontext/internal/ingest"
	"github.com/pbaille/codecontext/internal/store"
	"github.com/xeipuuv/gojsonschema"
)

const snapshotSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["memories"],
  "properties": {
    "memories": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["content"],
        "properties": {
          "type": {"type": "string"},
          "content": {"type": "string", "minLength": 1},
          "context": {"type": "string"},
          "created_at": {"type": "string"},
          "tags": {"type": "array", "items": {"type": "string"}},
          "metadata": {"type": "object"}
        }
      }
    },
    "patterns": {"type": ["array", "null"]},
    "files": {"type": ["array", "null"]}
  }
}`

var snapshotLoader = gojsonschema.NewStringLoader(snapshotSchema)

// ImportResult counts the records written by Import
type ImportResult struct {
	Memories int `json:"memories"`
	Patterns int `json:"patterns"`
	Files    int `json:"files"`
}

// Parse validates and decodes the structured export form.
func Parse(data []byte) (*Snapshot, error) {
	if err := ingest.ValidateJSON(snapshotLoader, data); err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Import writes the memories, patterns and files of a structured export into
// st. Memories get fresh ids; everything else is preserved. Like scan
// ingestion it stops at the first failure without rolling back.
func Import(ctx context.Context, st *store.Store, data []byte) (ImportResult, error) {
	var res ImportResult

	snap, err := Parse(data)
	if err != nil {
		return res, err
	}

	for _, m := range snap.Memories {
		if _, err := st.InsertMemory(ctx, domain.Memory{
			Type:      m.Type,
			Content:   m.Content,
			Context:   m.Context,
			CreatedAt: m.CreatedAt,
			Tags:      m.Tags,
			Metadata:  m.Metadata,
		}); err != nil {
			return res, fmt.Errorf("import memory %d: %w", res.Memories+1, err)
		}
		res.Memories++
	}

	for _, p := range snap.Patterns {
		if err := st.UpsertPattern(ctx, p); err != nil {
			return res, fmt.Errorf("import pattern %s: %w", p.ID, err)
		}
		res.Patterns++
	}

	for _, f := range snap.Files {
		if err := st.UpsertFile(ctx, f); err != nil {
			return res, fmt.Errorf("import file %s: %w", f.Path, err)
		}
		res.Files++
	}

	if err := st.AppendActivity(ctx, domain.ActivityImport,
		fmt.Sprintf("Imported %d memories, %d patterns, %d files", res.Memories, res.Patterns, res.Files)); err != nil {
		return res, err
	}
	return res, nil
}
