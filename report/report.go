// Package report renders the run outcome as a single static HTML page: one
// table per verdict bucket, worst first, so the broken links sit at the top.
package report

import (
	"errors"
	"fmt"
	"html/template"
	"os"
	"path"
	"strings"
	"time"

	"github.com/hazyhaar/linkrot/consensus"
	"github.com/hazyhaar/linkrot/history"
	"github.com/hazyhaar/linkrot/target"
)

// Options configures report generation.
type Options struct {
	// Tolerances feed the per-target verdicts.
	Tolerances consensus.Tolerances

	// ArchiveDir, when set, links each row to its local page archive.
	ArchiveDir string
}

// row is the template-friendly projection of one target's verdict.
type row struct {
	Target      string
	Host        string
	Title       string
	LastChecked string
	ErrorTag    string
	Evidence    string
	Issues      string
	Marker      string
	LocalDir    string
}

// bucket groups rows under one verdict heading.
type bucket struct {
	Name  string
	Class string
	Rows  []row
}

type view struct {
	GeneratedAt string
	Total       int
	Awaiting    int
	Buckets     []bucket
}

// Generate validates every record in the store and renders the HTML report.
// Targets with a single sample have no baseline to judge against yet; they
// stay out of every bucket and only show up in the header count.
func Generate(store *history.Store, opts Options) ([]byte, error) {
	buckets := map[consensus.Status]*bucket{
		consensus.StatusError:    {Name: "Broken", Class: "error"},
		consensus.StatusUnknown:  {Name: "Unknown", Class: "unknown"},
		consensus.StatusHashOnly: {Name: "Hash Only", Class: "hashonly"},
		consensus.StatusValid:    {Name: "Valid", Class: "valid"},
	}

	total := 0
	awaiting := 0
	for _, tgt := range store.Targets() {
		rec := store.Get(tgt)

		cls, err := consensus.Validate(rec, opts.Tolerances)
		if errors.Is(err, consensus.ErrInsufficientHistory) {
			awaiting++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("report: validate %s: %w", tgt, err)
		}

		r := buildRow(tgt, rec, opts)
		r.Evidence = joinValid(cls.Valid)
		r.Issues = joinInvalid(cls.Invalid)
		buckets[cls.Status].Rows = append(buckets[cls.Status].Rows, r)
		total++
	}

	v := view{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Total:       total,
		Awaiting:    awaiting,
		Buckets: []bucket{
			*buckets[consensus.StatusError],
			*buckets[consensus.StatusUnknown],
			*buckets[consensus.StatusHashOnly],
			*buckets[consensus.StatusValid],
		},
	}

	var sb strings.Builder
	if err := reportTmpl.Execute(&sb, v); err != nil {
		return nil, fmt.Errorf("report: render: %w", err)
	}
	return []byte(sb.String()), nil
}

// WriteFile renders the report and writes it to path.
func WriteFile(path string, store *history.Store, opts Options) error {
	data, err := Generate(store, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

func buildRow(tgt target.Target, rec *history.Record, opts Options) row {
	r := row{
		Target: tgt.String(),
		Host:   tgt.Host(),
		Marker: "Not set",
	}
	if rec == nil {
		return r
	}
	if rec.Marker != nil {
		r.Marker = "Set"
	}
	if !rec.LastChecked.IsZero() {
		r.LastChecked = rec.LastChecked.UTC().Format("2006-01-02 15:04")
	}
	if latest, ok := rec.Latest(); ok {
		if latest.Title != nil {
			r.Title = *latest.Title
		}
		r.ErrorTag = string(latest.Error)
	}
	// hrefs always use forward slashes, whatever the host OS separator is.
	if opts.ArchiveDir != "" {
		r.LocalDir = path.Join(opts.ArchiveDir, rec.URLHash)
	}
	return r
}

func joinValid(reasons []consensus.ValidReason) string {
	parts := make([]string, len(reasons))
	for i, v := range reasons {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

func joinInvalid(reasons []consensus.InvalidReason) string {
	parts := make([]string, len(reasons))
	for i, v := range reasons {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

var reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>linkrot report</title>
<style>
body{font-family:system-ui,sans-serif;max-width:1200px;margin:2rem auto;padding:0 1rem;color:#ddd;background:#1b1b1f}
h1{font-size:1.5rem;border-bottom:2px solid #333;padding-bottom:.5rem}
h2{font-size:1.1rem;margin-top:2rem}
table{width:100%;border-collapse:collapse;font-size:.85rem}
th,td{text-align:left;padding:.4rem .6rem;border-bottom:1px solid #2c2c31;vertical-align:top}
th{color:#999;font-weight:600}
a{color:#7aa2f7;text-decoration:none}
a:hover{text-decoration:underline}
.meta{color:#888;font-size:.8rem}
.empty{color:#666;font-style:italic;padding:.5rem 0}
h2.error{color:#f7768e}
h2.unknown{color:#e0af68}
h2.hashonly{color:#7dcfff}
h2.valid{color:#9ece6a}
.tag{color:#f7768e}
</style></head><body>
<h1>linkrot report</h1>
<p class="meta">{{.Total}} targets{{if .Awaiting}} &mdash; {{.Awaiting}} awaiting history{{end}} &mdash; generated {{.GeneratedAt}}</p>
{{- range .Buckets}}
<h2 class="{{.Class}}">{{.Name}} ({{len .Rows}})</h2>
{{- if .Rows}}
<table>
<tr><th>Target</th><th>Title</th><th>Checked</th><th>Error</th><th>Evidence</th><th>Issues</th><th>Marker</th><th>Local</th></tr>
{{- range .Rows}}
<tr>
<td><a href="{{.Target}}">{{.Host}}</a></td>
<td>{{.Title}}</td>
<td>{{.LastChecked}}</td>
<td class="tag">{{.ErrorTag}}</td>
<td>{{.Evidence}}</td>
<td>{{.Issues}}</td>
<td>{{.Marker}}</td>
<td>{{if .LocalDir}}<a href="{{.LocalDir}}">pages</a>{{end}}</td>
</tr>
{{- end}}
</table>
{{- else}}
<p class="empty">Nothing here.</p>
{{- end}}
{{- end}}
</body></html>`))
