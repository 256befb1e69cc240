package metadata

import (
	"strings"
)

var candidateDelimiters = []rune{',', ';', '\t'}

// DetectDelimiter picks the delimiter whose per-line count is highest and
// most consistent over the first few non-empty lines. Defaults to comma.
func DetectDelimiter(content string) rune {
	sample := make([]string, 0, 5)
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			sample = append(sample, trimmed)
			if len(sample) == 5 {
				break
			}
		}
	}
	if len(sample) == 0 {
		return ','
	}

	best := ','
	bestScore := 0.0
	for _, d := range candidateDelimiters {
		counts := make([]float64, len(sample))
		sum := 0.0
		for i, line := range sample {
			counts[i] = float64(strings.Count(line, string(d)))
			sum += counts[i]
		}
		avg := sum / float64(len(sample))
		if avg == 0 {
			continue
		}

		variance := 0.0
		for _, c := range counts {
			variance += (c - avg) * (c - avg)
		}
		variance /= float64(len(sample))

		if score := avg / (1 + variance); score > bestScore {
			bestScore = score
			best = d
		}
	}
	return best
}
