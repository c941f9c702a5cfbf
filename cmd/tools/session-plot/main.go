// Command session-plot renders a PNG timeline of the motion level transitions
// recorded for one ingest session, one panel line per stream.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/motion"
)

var (
	dbPath  = flag.String("db", "motion_data.db", "SQLite database path")
	session = flag.String("session", "", "Session id to plot (required)")
	out     = flag.String("out", "session.png", "Output PNG path")
)

var streamColors = []color.RGBA{
	{R: 214, G: 69, B: 65, A: 255},
	{R: 31, G: 119, B: 180, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
}

// levelSteps expands transitions into a step series: each transition holds
// its from-level until the moment of change.
func levelSteps(rows []db.TransitionRow, start float64) plotter.XYs {
	pts := make(plotter.XYs, 0, 2*len(rows))
	for _, row := range rows {
		x := row.At.Sub(rows[0].At).Seconds() + start
		pts = append(pts,
			plotter.XY{X: x, Y: float64(row.FromLevel)},
			plotter.XY{X: x, Y: float64(row.ToLevel)},
		)
	}
	return pts
}

func main() {
	flag.Parse()

	if *session == "" {
		flag.Usage()
		os.Exit(2)
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	rows, err := store.SessionTransitions(*session)
	if err != nil {
		log.Fatalf("failed to load transitions: %v", err)
	}
	if len(rows) == 0 {
		log.Fatalf("no transitions recorded for session %s", *session)
	}

	byStream := map[int][]db.TransitionRow{}
	for _, row := range rows {
		byStream[row.StreamID] = append(byStream[row.StreamID], row)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Motion levels, session %s", *session)
	p.X.Label.Text = "seconds"
	p.Y.Label.Text = "level"
	p.Y.Min = -0.5
	p.Y.Max = float64(motion.MaxLevel) + 0.5
	p.Legend.Top = true

	for id := 1; id <= motion.MaxStreams; id++ {
		streamRows, ok := byStream[id]
		if !ok {
			continue
		}
		line, err := plotter.NewLine(levelSteps(streamRows, 0))
		if err != nil {
			log.Fatalf("failed to build series for stream %d: %v", id, err)
		}
		line.Width = vg.Points(1.5)
		line.Color = streamColors[(id-1)%len(streamColors)]
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("stream %d", id), line)
	}

	if err := p.Save(14*vg.Inch, 4*vg.Inch, *out); err != nil {
		log.Fatalf("failed to save plot: %v", err)
	}
	log.Printf("wrote %s (%d transitions, %d streams)", *out, len(rows), len(byStream))
}
