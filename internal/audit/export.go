package audit

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strings"
	"time"
)

var csvHeader = []string{"id", "at", "actor", "action", "target", "outcome", "reason", "meta"}

// WriteCSV renders entries as CSV for compliance exports.
func WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		record := []string{
			e.ID,
			e.At.UTC().Format(time.RFC3339),
			e.Actor,
			e.Action,
			e.Target,
			e.Outcome,
			e.Reason,
			formatMeta(e.Meta),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatMeta(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+meta[k])
	}
	return strings.Join(parts, ";")
}
