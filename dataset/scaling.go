package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ChannelScale holds element-wise statistics over every stored epoch of one
// channel: Mean[i] and Std[i] describe position i of the flattened epoch
// record. Keeping the statistics per element rather than per channel matters
// for spectrogram stores, where each frequency bin has its own scale.
type ChannelScale struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Scaling is the content of a preprocessing directory's scaling.json, written
// at ingest time and applied by datasets opened with Normalize.
type Scaling struct {
	Channels map[string]ChannelScale `json:"channels"`
}

// LoadScaling reads a scaling.json file.
func LoadScaling(path string) (*Scaling, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open scaling: %w", ErrConfig, err)
	}
	var s Scaling
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: scaling %s: %v", ErrConfig, path, err)
	}
	return &s, nil
}

// Save writes the scaling file, creating parent directories as needed.
func (s *Scaling) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// channelNorm is a channel's scaling folded into the form the read path
// applies: out[i] = (in[i] - mean[i]) * inv[i]. Zero-variance elements get
// inv 1 so constant inputs pass through centered instead of dividing by zero.
type channelNorm struct {
	mean []float32
	inv  []float32
}

func newChannelNorm(cs ChannelScale) channelNorm {
	n := channelNorm{
		mean: make([]float32, len(cs.Mean)),
		inv:  make([]float32, len(cs.Std)),
	}
	for i, m := range cs.Mean {
		n.mean[i] = float32(m)
	}
	for i, s := range cs.Std {
		if s == 0 {
			n.inv[i] = 1
		} else {
			n.inv[i] = float32(1 / s)
		}
	}
	return n
}
