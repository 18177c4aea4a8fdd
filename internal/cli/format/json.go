package format

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSON writes v to w as indented JSON, for --json flag support across
// the status, list, and paths commands.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
