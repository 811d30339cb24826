package operators

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

//go:embed templates/index.html
var indexTemplate string

var index = template.Must(template.New("index").Parse(indexTemplate))

const metaTag = `<script type="application/json" id="export-metadata">`

// Run is one export listed in an index.
type Run struct {
	Name string // directory name
	Link string // contact sheet, relative to the index
	sheetMeta
}

// Runs lists the exports under root, newest first. A directory counts as a
// run when it holds a contact sheet; sheets without metadata are listed by
// name and modification time.
func Runs(root string) ([]Run, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan exports: %w", err)
	}
	var runs []Run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(root, e.Name(), "index.html")
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		r := Run{Name: e.Name(), Link: e.Name() + "/index.html"}
		if meta, err := readMeta(path); err == nil {
			r.sheetMeta = meta
		} else {
			r.Title = e.Name()
			r.Created = info.ModTime()
		}
		runs = append(runs, r)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Created.After(runs[j].Created)
	})
	return runs, nil
}

func readMeta(path string) (sheetMeta, error) {
	var meta sheetMeta
	content, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	html := string(content)
	start := strings.Index(html, metaTag)
	if start < 0 {
		return meta, errors.New("no export metadata")
	}
	html = html[start+len(metaTag):]
	end := strings.Index(html, "</script>")
	if end < 0 {
		return meta, errors.New("unterminated export metadata")
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(html[:end])), &meta); err != nil {
		return meta, fmt.Errorf("export metadata: %w", err)
	}
	return meta, nil
}

// WriteIndex writes root/index.html linking every export run under root.
func WriteIndex(root string) (err error) {
	runs, err := Runs(root)
	if err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(root, "index.html"))
	if err != nil {
		return fmt.Errorf("create export index: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	data := struct {
		Runs      []Run
		Generated time.Time
	}{runs, time.Now()}
	if err := index.Execute(f, data); err != nil {
		return fmt.Errorf("render export index: %w", err)
	}
	return nil
}
