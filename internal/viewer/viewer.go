// Package viewer implements the HTTP result viewer behind `maelstrom
// serve`. It is grounded on the retrieval pack's idiomatic router choice:
// jordigilh-kubernaut's HTTP services all route through chi.NewRouter(),
// so this does too (see DESIGN.md).
package viewer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"text/template"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config bundles the primitive values that configure a Viewer.
type Config struct {
	ResultsDir string
}

// Viewer serves a read-only view of a directory of test run results.
type Viewer struct {
	cfg    Config
	router chi.Router
}

// New constructs a Viewer rooted at cfg.ResultsDir.
func New(cfg Config) *Viewer {
	v := &Viewer{cfg: cfg}
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/", v.listRuns)
	r.Get("/runs/{id}", v.showRun)
	r.Get("/runs/{id}/history.json", v.serveFile("history.json"))
	r.Get("/runs/{id}/journal.json", v.serveFile("journal.json"))
	r.Get("/runs/{id}/results.json", v.serveFile("results.json"))
	r.Get("/runs/{id}/messages.svg", v.serveFile("messages.svg"))
	v.router = r
	return v
}

// ServeHTTP implements http.Handler.
func (v *Viewer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.router.ServeHTTP(w, r)
}

// ListenAndServe serves the viewer on addr until the process exits or the
// listener errors.
func (v *Viewer) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, v)
}

func (v *Viewer) runDir(id string) (string, error) {
	if id == "" || filepath.Base(id) != id {
		return "", fmt.Errorf("viewer: invalid run id %q", id)
	}
	dir := filepath.Join(v.cfg.ResultsDir, id)
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("viewer: run %q not found: %w", id, err)
	}
	return dir, nil
}

var listTmpl = template.Must(template.New("list").Parse(`<!doctype html>
<html><body>
<h1>maelstrom runs</h1>
<ul>
{{range .}}<li><a href="/runs/{{.}}">{{.}}</a></li>
{{end}}
</ul>
</body></html>`))

func (v *Viewer) listRuns(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(v.cfg.ResultsDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = listTmpl.Execute(w, ids)
}

var runTmpl = template.Must(template.New("run").Parse(`<!doctype html>
<html><body>
<h1>run {{.ID}}</h1>
<ul>
<li><a href="/runs/{{.ID}}/results.json">results.json</a></li>
<li><a href="/runs/{{.ID}}/history.json">history.json</a></li>
<li><a href="/runs/{{.ID}}/journal.json">journal.json</a></li>
<li><a href="/runs/{{.ID}}/messages.svg">messages.svg</a></li>
</ul>
{{if .Results}}<pre>{{.Results}}</pre>{{end}}
</body></html>`))

func (v *Viewer) showRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dir, err := v.runDir(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	var results string
	if bs, err := os.ReadFile(filepath.Join(dir, "results.json")); err == nil {
		var pretty map[string]any
		if json.Unmarshal(bs, &pretty) == nil {
			if out, err := json.MarshalIndent(pretty, "", "  "); err == nil {
				results = string(out)
			}
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = runTmpl.Execute(w, struct {
		ID      string
		Results string
	}{ID: id, Results: results})
}

func (v *Viewer) serveFile(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		dir, err := v.runDir(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, name))
	}
}
