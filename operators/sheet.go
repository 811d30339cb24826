package operators

import (
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

//go:embed templates/sheet.html
var sheetTemplate string

var sheet = template.Must(template.New("sheet").Parse(sheetTemplate))

// Shot is one exported step.
type Shot struct {
	Slide int
	Step  int
	Type  string // slide type tag
	File  string // name relative to the export directory
	View  string // terminal view at capture time, with escape sequences
}

// Contact sheet rows carry the view as HTML.
type sheetShot struct {
	Shot
	Image bool
	HTML  template.HTML
}

type sheetData struct {
	Title     string
	Format    Format
	Created   time.Time
	Cancelled bool
	Shots     []sheetShot
	Trips     []string
	Meta      sheetMeta
}

// sheetMeta is embedded in the sheet as JSON so WriteIndex can list the run
// without parsing HTML.
type sheetMeta struct {
	Title     string    `json:"title"`
	Format    Format    `json:"format"`
	Created   time.Time `json:"created"`
	Duration  string    `json:"duration"`
	Steps     int       `json:"steps"`
	Problems  int       `json:"problems"`
	Cancelled bool      `json:"cancelled"`
}

// WriteSheet writes index.html into dir, listing every shot of res.
func WriteSheet(dir, title string, res *Result) (err error) {
	data := sheetData{
		Title:     title,
		Format:    res.Format,
		Created:   res.Started,
		Cancelled: res.Cancelled,
		Trips:     res.Problems,
	}
	if data.Title == "" {
		data.Title = "Showreel export"
	}
	data.Meta = sheetMeta{
		Title:     data.Title,
		Format:    res.Format,
		Created:   res.Started,
		Duration:  res.Duration.Round(time.Millisecond).String(),
		Steps:     len(res.Shots),
		Problems:  len(res.Problems),
		Cancelled: res.Cancelled,
	}
	for _, s := range res.Shots {
		data.Shots = append(data.Shots, sheetShot{
			Shot:  s,
			Image: res.Format != FormatArchive,
			HTML:  ANSIToHTML(s.View),
		})
	}

	path := filepath.Join(dir, "index.html")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create contact sheet: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := sheet.Execute(f, data); err != nil {
		return fmt.Errorf("render contact sheet: %w", err)
	}
	return nil
}
