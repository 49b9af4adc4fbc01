// Command hypnoplot renders one subject's hypnogram from a dataset
// directory as a PNG.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sleeplab/psgdata/dataset"
	"github.com/sleeplab/psgdata/store"
)

const epochHours = 30.0 / 3600.0

// stageY maps stage codes to plot heights in the conventional hypnogram
// order: wake on top, deep sleep at the bottom, REM just under wake.
var stageY = [5]float64{4, 2, 1, 0, 3}

var stageNames = [5]string{"W", "N1", "N2", "N3", "REM"}

func main() {
	dirFlag := flag.String("dir", "data", "dataset directory to read")
	prepFlag := flag.String("prep", dataset.PreprocessingRaw, "preprocessing directory holding the label store")
	subjectFlag := flag.Int("subject", -1, "subject id to plot (default: first subject in the table)")
	outFlag := flag.String("out", "hypnogram.png", "output PNG path")
	titleFlag := flag.String("title", "", "plot title (default: derived from the subject id)")
	flag.Parse()

	table, err := dataset.LoadTable(filepath.Join(*dirFlag, dataset.TableFile))
	if err != nil {
		log.Fatalf("load table: %v", err)
	}
	if table.Len() == 0 {
		log.Fatalf("table %s has no subjects", filepath.Join(*dirFlag, dataset.TableFile))
	}

	rec := table.Records()[0]
	if *subjectFlag >= 0 {
		var ok bool
		rec, ok = table.Lookup(*subjectFlag)
		if !ok {
			log.Fatalf("subject %d is not in the table", *subjectFlag)
		}
	}

	labels, err := readLabels(filepath.Join(*dirFlag, *prepFlag), rec.ID, rec.Epochs)
	if err != nil {
		log.Fatalf("read labels: %v", err)
	}

	var counts [5]int
	for _, v := range labels {
		if v >= 0 && int(v) < len(counts) {
			counts[v]++
		}
	}
	log.Printf("subject %d: %d epochs (W %d, N1 %d, N2 %d, N3 %d, REM %d)",
		rec.ID, len(labels), counts[0], counts[1], counts[2], counts[3], counts[4])

	title := *titleFlag
	if title == "" {
		title = fmt.Sprintf("subject %d hypnogram", rec.ID)
	}
	if err := plotHypnogram(labels, title, *outFlag); err != nil {
		log.Fatalf("plot: %v", err)
	}
	log.Printf("wrote %s", *outFlag)
}

func readLabels(dir string, id, epochs int) ([]int32, error) {
	s, err := store.OpenLabels(store.LabelPath(dir, id), epochs)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.ReadLabels(0, epochs)
}

func plotHypnogram(labels []int32, title, outPath string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (hours)"
	p.Y.Label.Text = "Stage"

	// Step curve: every epoch contributes a horizontal segment so stage
	// changes appear as vertical jumps at epoch boundaries.
	curve := make(plotter.XYs, 0, 2*len(labels))
	rem := make(plotter.XYs, 0, len(labels)/4)
	for e, v := range labels {
		if v < 0 || int(v) >= len(stageY) {
			continue
		}
		y := stageY[v]
		curve = append(curve,
			plotter.XY{X: float64(e) * epochHours, Y: y},
			plotter.XY{X: float64(e+1) * epochHours, Y: y})
		if stageNames[v] == "REM" {
			rem = append(rem, plotter.XY{X: (float64(e) + 0.5) * epochHours, Y: y})
		}
	}
	if len(curve) == 0 {
		return fmt.Errorf("no plottable stages among %d labels", len(labels))
	}

	line, err := plotter.NewLine(curve)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{B: 180, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	if len(rem) > 0 {
		scatter, err := plotter.NewScatter(rem)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(scatter)
		p.Legend.Add("REM", scatter)
		p.Legend.Top = true
	}

	p.Add(plotter.NewGrid())
	p.Y.Min, p.Y.Max = -0.5, 4.5
	p.Y.Tick.Marker = plot.ConstantTicks([]plot.Tick{
		{Value: 0, Label: "N3"},
		{Value: 1, Label: "N2"},
		{Value: 2, Label: "N1"},
		{Value: 3, Label: "REM"},
		{Value: 4, Label: "W"},
	})
	p.X.Min = 0
	p.X.Max = float64(len(labels)) * epochHours

	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return p.Save(12*vg.Inch, 3*vg.Inch, outPath)
}
