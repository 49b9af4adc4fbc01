// Command psginfo summarizes a dataset directory: subjects, epochs, windows,
// split sizes and on-disk footprint. Opening the dataset validates every
// store file against the subject table, so a clean report doubles as an
// integrity check.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/sleeplab/psgdata/dataset"
)

func main() {
	dirFlag := flag.String("dir", "data", "dataset directory to inspect")
	prepFlag := flag.String("prep", dataset.PreprocessingRaw, "preprocessing directory to open: 'raw' or 'xsleepnet'")
	channelsFlag := flag.String("channels", "", "comma-separated channels to open (default: every channel on disk)")
	seqLenFlag := flag.Int("seq-len", dataset.DefaultSeqLen, "window length in epochs")
	subjectsFlag := flag.Bool("subjects", false, "print the per-subject table")
	flag.Parse()

	table, err := dataset.LoadTable(filepath.Join(*dirFlag, dataset.TableFile))
	if err != nil {
		log.Fatalf("load table: %v", err)
	}
	if table.Len() == 0 {
		log.Fatalf("table %s has no subjects", filepath.Join(*dirFlag, dataset.TableFile))
	}

	var channels []string
	if s := strings.TrimSpace(*channelsFlag); s != "" {
		channels = strings.Split(s, ",")
	} else {
		channels, err = discoverChannels(filepath.Join(*dirFlag, *prepFlag), table.Records()[0].ID)
		if err != nil {
			log.Fatalf("discover channels: %v", err)
		}
	}

	d, err := dataset.Open(dataset.Config{
		Dir:           *dirFlag,
		Channels:      channels,
		Preprocessing: *prepFlag,
		SeqLen:        *seqLenFlag,
	})
	if err != nil {
		log.Fatalf("open dataset: %v", err)
	}

	fmt.Printf("dataset:     %s (%s)\n", *dirFlag, *prepFlag)
	fmt.Printf("channels:    %s\n", strings.Join(d.Channels(), ", "))
	fmt.Printf("epoch shape: %v\n", d.EpochShape())
	fmt.Printf("subjects:    %s\n", humanize.Comma(int64(table.Len())))
	fmt.Printf("epochs:      %s\n", humanize.Comma(int64(table.TotalEpochs())))
	fmt.Printf("windows:     %s (seq %d)\n", humanize.Comma(int64(d.Len())), d.SeqLen())

	subjectsPerSplit := map[dataset.Split]int{}
	for _, rec := range table.Records() {
		subjectsPerSplit[rec.Split]++
	}
	train, valid, test := d.Sets()
	fmt.Printf("splits:      train %d/%s  valid %d/%s  test %d/%s (subjects/windows)\n",
		subjectsPerSplit[dataset.SplitTrain], humanize.Comma(int64(len(train))),
		subjectsPerSplit[dataset.SplitValid], humanize.Comma(int64(len(valid))),
		subjectsPerSplit[dataset.SplitTest], humanize.Comma(int64(len(test))))

	if size, err := dirSize(filepath.Join(*dirFlag, *prepFlag)); err == nil {
		fmt.Printf("on disk:     %s\n", humanize.Bytes(uint64(size)))
	}
	if _, err := dataset.LoadScaling(filepath.Join(*dirFlag, *prepFlag, dataset.ScalingFile)); err != nil {
		fmt.Printf("scaling:     missing (%v)\n", err)
	} else {
		fmt.Printf("scaling:     present\n")
	}

	if *subjectsFlag {
		fmt.Printf("\n%6s %8s %8s %-6s %4s %-3s\n", "id", "epochs", "windows", "split", "age", "sex")
		for _, rec := range table.Records() {
			fmt.Printf("%6d %8d %8d %-6s %4d %-3s\n",
				rec.ID, rec.Epochs, dataset.SubjectWindows(rec.Epochs, d.SeqLen()),
				rec.Split, rec.Age, rec.Sex)
		}
	}
}

// discoverChannels lists the channels present for one subject by parsing the
// <channel>_<id>.dat names in a preprocessing directory.
func discoverChannels(dir string, id int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var channels []string
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ".dat")
		if !ok {
			continue
		}
		i := strings.LastIndexByte(base, '_')
		if i <= 0 {
			continue
		}
		n, err := strconv.Atoi(base[i+1:])
		if err != nil || n != id || base[:i] == "y" {
			continue
		}
		channels = append(channels, base[:i])
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("no signal stores for subject %d under %s", id, dir)
	}
	return channels, nil
}

func dirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}
