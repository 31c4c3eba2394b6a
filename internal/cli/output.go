package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// writeOutput renders v according to the selected format. Text output uses
// the provided renderer; JSON output marshals v directly.
func writeOutput(w io.Writer, opts *RootOptions, v any, text func(io.Writer) error) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

// errText renders an error consistently in text output.
func errText(err error) string {
	if err == nil {
		return "ok"
	}
	return fmt.Sprintf("error: %v", err)
}
