// Package parser extracts severity levels from raw log lines.
package parser

import (
	"encoding/json"
	"strings"

	"github.com/Immortalbear27/log_level_api/pkg/levels"
)

// Mode names accepted by ForMode.
const (
	ModePlain      = "plain"
	ModeStructured = "structured"
)

// Parser classifies a single log line. Implementations are stateless and
// safe for concurrent use.
type Parser interface {
	ParseLevel(line string) levels.Level
}

// PlainParser handles whitespace-delimited lines of the shape
// "DATE TIME LEVEL message...": the third token carries the severity.
type PlainParser struct{}

func NewPlainParser() *PlainParser { return &PlainParser{} }

// ParseLevel returns the severity named by the line's third whitespace
// token. Lines with fewer than three tokens, or a third token that is not
// a known level, classify as UNKNOWN.
func (p *PlainParser) ParseLevel(line string) levels.Level {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return levels.Unknown
	}
	return levels.FromString(parts[2])
}

// JSONParser handles structured lines: a JSON object whose "level" field
// names the severity.
type JSONParser struct{}

func NewJSONParser() *JSONParser { return &JSONParser{} }

// ParseLevel unmarshals the line and reads its "level" field. Lines that
// are not valid JSON objects, lack the field, or carry a non-string value
// classify as UNKNOWN.
func (p *JSONParser) ParseLevel(line string) levels.Level {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return levels.Unknown
	}

	val, ok := data["level"].(string)
	if !ok {
		return levels.Unknown
	}
	return levels.FromString(val)
}

// ForMode selects the parser for a request mode. "plain" selects the
// whitespace parser; every other value, including empty, selects the
// structured parser.
func ForMode(mode string) Parser {
	if mode == ModePlain {
		return NewPlainParser()
	}
	return NewJSONParser()
}
