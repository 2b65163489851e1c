// Package report writes test results as a table in CSV, JSON or YAML.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loykin/launchcheck/internal/result"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	YAML Format = "yaml"
)

// Columns is the column order of the tabular report.
var Columns = []string{
	"Name",
	"Shortcut Path",
	"Expected Executable",
	"Associated Windows",
	"Terminated Executables",
	"Closed Windows",
	"Status",
	"Remarks",
}

// Row is one report line with list cells already joined.
type Row struct {
	Name                  string `json:"Name" yaml:"Name"`
	ShortcutPath          string `json:"Shortcut Path" yaml:"Shortcut Path"`
	ExpectedExecutable    string `json:"Expected Executable" yaml:"Expected Executable"`
	AssociatedWindows     string `json:"Associated Windows" yaml:"Associated Windows"`
	TerminatedExecutables string `json:"Terminated Executables" yaml:"Terminated Executables"`
	ClosedWindows         string `json:"Closed Windows" yaml:"Closed Windows"`
	Status                string `json:"Status" yaml:"Status"`
	Remarks               string `json:"Remarks" yaml:"Remarks"`
}

func (r Row) cells() []string {
	return []string{r.Name, r.ShortcutPath, r.ExpectedExecutable, r.AssociatedWindows,
		r.TerminatedExecutables, r.ClosedWindows, r.Status, r.Remarks}
}

func NewRow(res result.TestResult) Row {
	return Row{
		Name:                  res.Name,
		ShortcutPath:          res.LauncherFileName,
		ExpectedExecutable:    res.ExpectedExecutableName,
		AssociatedWindows:     result.JoinCell(res.AssociatedWindowTitles),
		TerminatedExecutables: result.JoinCell(res.TerminatedExecutableNames),
		ClosedWindows:         result.JoinCell(res.ClosedWindowTitles),
		Status:                res.Status.String(),
		Remarks:               res.Remarks,
	}
}

// FormatFor picks the format from the file extension; anything unknown is
// CSV.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON
	case ".yaml", ".yml":
		return YAML
	default:
		return CSV
	}
}

// Write renders results to path in the format implied by its extension.
func Write(fs afero.Fs, path string, results []result.TestResult) error {
	var buf bytes.Buffer
	if err := Encode(&buf, FormatFor(path), results); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func Encode(w io.Writer, f Format, results []result.TestResult) error {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = NewRow(r)
	}
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case CSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(Columns); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write(r.cells()); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

// Summary counts results per status.
type Summary map[result.Status]int

func Summarize(results []result.TestResult) Summary {
	s := Summary{}
	for _, r := range results {
		s[r.Status]++
	}
	return s
}

// String renders "Success=3 Failed=1" with statuses in a stable order.
func (s Summary) String() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, s[result.Status(k)])
	}
	return strings.Join(parts, " ")
}
