package yolo

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// LoadLabels reads one label per line. trimPrefix drops that many leading
// characters from every label, for label files written as "0_name".
func LoadLabels(r io.Reader, trimPrefix int) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if trimPrefix > 0 {
			if len(line) <= trimPrefix {
				return nil, errors.Errorf("label %q is shorter than its %d character prefix", line, trimPrefix)
			}
			line = line[trimPrefix:]
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading labels")
	}
	return labels, nil
}

// LoadLabelsFile reads labels from path.
func LoadLabelsFile(path string, trimPrefix int) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "opening label file")
	}
	defer f.Close()
	return LoadLabels(f, trimPrefix)
}

// Classification is a single label with its score.
type Classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classify returns up to limit labels whose probability exceeds threshold,
// best first.
func Classify(probs []float64, labels []string, threshold float64, limit int) ([]Classification, error) {
	if len(labels) < len(probs) {
		return nil, errors.Errorf("classifier has %d outputs but only %d labels", len(probs), len(labels))
	}
	ids := make([]int, len(probs))
	for i := range ids {
		ids[i] = i
	}
	sort.SliceStable(ids, func(a, b int) bool { return probs[ids[a]] > probs[ids[b]] })

	var out []Classification
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		if probs[id] > threshold {
			out = append(out, Classification{Label: labels[id], Score: probs[id]})
		}
	}
	return out, nil
}

// CountLabel returns how many detections carry label.
func CountLabel(dets []Detection, label string) int {
	n := 0
	for _, d := range dets {
		if d.Label == label {
			n++
		}
	}
	return n
}
