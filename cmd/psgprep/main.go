// Command psgprep converts a source polysomnography collection into a
// dataset directory of binary epoch stores, ready for windowed loading.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sleeplab/psgdata/ingest"
)

// config mirrors the CLI flags so a run can be described by a JSON file.
// Flags given on the command line always override file values.
type config struct {
	Dataset   string   `json:"dataset"`
	Source    string   `json:"source"`
	Out       string   `json:"out"`
	Fetch     bool     `json:"fetch"`
	Subgroups []string `json:"subgroups"`
	Workers   int      `json:"workers"`
	Seed      int64    `json:"seed"`
	TrainFrac float64  `json:"train_frac"`
	TestFrac  float64  `json:"test_frac"`
	Catalog   string   `json:"catalog"`
}

func main() {
	datasetFlag := flag.String("dataset", "isruc", "source collection to ingest: 'isruc' or 'ucddb'")
	sourceFlag := flag.String("source", "download", "directory holding (or receiving) the source recordings")
	outFlag := flag.String("out", "data", "dataset directory to write")
	fetchFlag := flag.Bool("fetch", false, "download missing source files before ingesting")
	subgroupsFlag := flag.String("subgroups", "", "comma-separated ISRUC subgroups to ingest (default: all)")
	workersFlag := flag.Int("workers", 0, "concurrent subject conversions (0 = GOMAXPROCS)")
	seedFlag := flag.Int64("seed", 42, "random seed for the train/valid/test split")
	trainFracFlag := flag.Float64("train-frac", 0.7, "fraction of subjects assigned to the training split")
	testFracFlag := flag.Float64("test-frac", 0.15, "fraction of subjects assigned to the test split")
	catalogFlag := flag.String("catalog", "", "path to a SQLite conversion catalog; enables resumable ingest")
	configFlag := flag.String("config", "", "path to a JSON config file (flags override its values)")
	flag.Parse()

	cfg := config{
		Dataset:   *datasetFlag,
		Source:    *sourceFlag,
		Out:       *outFlag,
		Fetch:     *fetchFlag,
		Workers:   *workersFlag,
		Seed:      *seedFlag,
		TrainFrac: *trainFracFlag,
		TestFrac:  *testFracFlag,
		Catalog:   *catalogFlag,
	}
	if s := strings.TrimSpace(*subgroupsFlag); s != "" {
		cfg.Subgroups = strings.Split(s, ",")
	}

	if *configFlag != "" {
		fileCfg, err := loadConfig(*configFlag)
		if err != nil {
			log.Fatalf("load config %s: %v", *configFlag, err)
		}
		set := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if !set["dataset"] && fileCfg.Dataset != "" {
			cfg.Dataset = fileCfg.Dataset
		}
		if !set["source"] && fileCfg.Source != "" {
			cfg.Source = fileCfg.Source
		}
		if !set["out"] && fileCfg.Out != "" {
			cfg.Out = fileCfg.Out
		}
		if !set["fetch"] {
			cfg.Fetch = cfg.Fetch || fileCfg.Fetch
		}
		if !set["subgroups"] && len(fileCfg.Subgroups) > 0 {
			cfg.Subgroups = fileCfg.Subgroups
		}
		if !set["workers"] && fileCfg.Workers > 0 {
			cfg.Workers = fileCfg.Workers
		}
		if !set["seed"] && fileCfg.Seed != 0 {
			cfg.Seed = fileCfg.Seed
		}
		if !set["train-frac"] && fileCfg.TrainFrac > 0 {
			cfg.TrainFrac = fileCfg.TrainFrac
		}
		if !set["test-frac"] && fileCfg.TestFrac > 0 {
			cfg.TestFrac = fileCfg.TestFrac
		}
		if !set["catalog"] && fileCfg.Catalog != "" {
			cfg.Catalog = fileCfg.Catalog
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	producer, err := newProducer(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	p := &ingest.Pipeline{
		Producer:  producer,
		OutDir:    cfg.Out,
		Workers:   cfg.Workers,
		Seed:      cfg.Seed,
		TrainFrac: cfg.TrainFrac,
		TestFrac:  cfg.TestFrac,
		Fetch:     cfg.Fetch,
	}
	if cfg.Catalog != "" {
		cat, err := ingest.OpenCatalog(ctx, cfg.Catalog)
		if err != nil {
			log.Fatalf("open catalog: %v", err)
		}
		defer cat.Close()
		p.Catalog = cat
	}

	log.Printf("ingesting %s from %s into %s", cfg.Dataset, cfg.Source, cfg.Out)
	sum, err := p.Run(ctx)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}
	log.Printf("done: %d subjects, %s epochs, %s written in %s",
		sum.Subjects, humanize.Comma(int64(sum.Epochs)),
		humanize.Bytes(uint64(sum.Bytes)), sum.Elapsed.Round(time.Second))
}

func newProducer(cfg config) (ingest.Producer, error) {
	switch cfg.Dataset {
	case "isruc":
		return &ingest.ISRUC{Root: cfg.Source, Subgroups: cfg.Subgroups}, nil
	case "ucddb":
		if cfg.Fetch {
			return nil, fmt.Errorf("ucddb has no fetcher; download the PhysioNet files into %s first", cfg.Source)
		}
		return &ingest.UCDDB{Root: cfg.Source}, nil
	}
	return nil, fmt.Errorf("unknown dataset %q (want isruc or ucddb)", cfg.Dataset)
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
