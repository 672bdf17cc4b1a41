package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/reporting"
	"trailing-lab/internal/window"
)

// Output formats accepted by --format.
const (
	formatText     = "text"
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

func checkFormat(f string) error {
	switch f {
	case formatText, formatMarkdown, formatJSON:
		return nil
	}
	return fmt.Errorf("unknown format %q: want text, markdown or json", f)
}

// parseTimeFlag accepts epoch seconds, epoch milliseconds or a calendar
// date. Empty means unset.
func parseTimeFlag(name, s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	ms, ok := window.Normalize(domain.Text(s))
	if !ok {
		return 0, fmt.Errorf("--%s: cannot parse time %q", name, s)
	}
	return ms, nil
}

// writeReport renders r in format. payload is what JSON output encodes.
func writeReport(w io.Writer, format string, r *reporting.Report, payload any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case formatMarkdown:
		_, err := io.WriteString(w, reporting.RenderMarkdown(r))
		return err
	default:
		_, err := io.WriteString(w, reporting.RenderText(r))
		return err
	}
}

// writeTradesCSV writes trades to path, or does nothing when path is empty.
func writeTradesCSV(path string, trades []domain.Trade) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := reporting.RenderTradesCSV(f, trades); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
