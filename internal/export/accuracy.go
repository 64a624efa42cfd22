package export

import (
	"unicode/utf8"

	"github.com/arbovm/levenshtein"
)

// AccuracyItem compares one recognized text with the label the user kept
type AccuracyItem struct {
	ID             int64   `json:"id"`
	RecognizedText string  `json:"recognized_text"`
	Label          string  `json:"label"`
	Distance       int     `json:"distance"`
	CharErrorRate  float64 `json:"char_error_rate"`
	Edited         bool    `json:"edited"`
}

// AccuracyReport summarises recognition accuracy over a session
type AccuracyReport struct {
	Items         []AccuracyItem `json:"items"`
	Compared      int            `json:"compared"`
	Edited        int            `json:"edited"`
	CharErrorRate float64        `json:"char_error_rate"`
}

// Accuracy measures, per entry with recognized text, the edit distance from
// the recognized text to the current label. The label is taken as the truth.
func Accuracy(entries []Entry) AccuracyReport {
	report := AccuracyReport{Items: make([]AccuracyItem, 0, len(entries))}

	totalDistance, totalChars := 0, 0
	for _, e := range entries {
		if e.RecognizedText == "" {
			continue
		}

		distance := levenshtein.Distance(e.RecognizedText, e.Label)
		chars := utf8.RuneCountInString(e.Label)

		item := AccuracyItem{
			ID:             e.ID,
			RecognizedText: e.RecognizedText,
			Label:          e.Label,
			Distance:       distance,
			CharErrorRate:  charErrorRate(distance, chars),
			Edited:         distance > 0,
		}
		report.Items = append(report.Items, item)

		report.Compared++
		if item.Edited {
			report.Edited++
		}
		totalDistance += distance
		totalChars += chars
	}

	report.CharErrorRate = charErrorRate(totalDistance, totalChars)
	return report
}

func charErrorRate(distance, chars int) float64 {
	if chars == 0 {
		if distance == 0 {
			return 0
		}
		return 1
	}
	return float64(distance) / float64(chars)
}
