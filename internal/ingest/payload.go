package ingest

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pbaille/codecontext/internal/domain"
	"github.com/xeipuuv/gojsonschema"
)

// ScanResultSchema describes the scanner payload. Additional properties are
// allowed everywhere so newer scanners stay compatible.
const ScanResultSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "files": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path"],
        "properties": {
          "path": {"type": "string", "minLength": 1},
          "language": {"type": "string"},
          "size": {"type": "integer", "minimum": 0},
          "lines": {"type": "integer", "minimum": 0},
          "modified_at": {"type": "string"},
          "hash": {"type": "string"}
        }
      }
    },
    "patterns": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "name", "frequency", "confidence"],
        "properties": {
          "id": {"type": "string"},
          "type": {"enum": ["function", "class", "module", "pattern", "style"]},
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "frequency": {"type": "integer", "minimum": 1},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "examples": {"type": "array", "items": {"type": "string"}},
          "file": {"type": "string"},
          "lines": {
            "type": "object",
            "properties": {
              "start": {"type": "integer", "minimum": 0},
              "end": {"type": "integer", "minimum": 0}
            }
          }
        }
      }
    },
    "architecture": {"type": "object"},
    "dependencies": {"type": "array", "items": {"type": "string"}},
    "metrics": {
      "type": "object",
      "properties": {
        "totalFiles": {"type": "integer", "minimum": 0},
        "totalLines": {"type": "integer", "minimum": 0},
        "complexity": {"enum": ["low", "medium", "high", ""]}
      }
    }
  }
}`

var scanSchema = gojsonschema.NewStringLoader(ScanResultSchema)

// ValidateJSON checks data against schema and joins every violation into one
// error.
func ValidateJSON(schema gojsonschema.JSONLoader, data []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid payload: %s", strings.Join(msgs, "; "))
}

// DecodeScanResult validates and decodes a scanner JSON payload.
func DecodeScanResult(data []byte) (*ScanResult, error) {
	if err := ValidateJSON(scanSchema, data); err != nil {
		return nil, err
	}
	var res ScanResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode scan result: %w", err)
	}
	return &res, nil
}

// PatternID derives a stable id so rescans of the same observation upsert
// instead of duplicating.
func PatternID(p domain.Pattern) string {
	sum := sha1.Sum([]byte(string(p.Type) + "\x00" + p.Name + "\x00" + p.File))
	return "pat_" + hex.EncodeToString(sum[:8])
}
