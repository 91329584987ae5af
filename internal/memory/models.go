package memory

import "time"

// Entry is one remembered question/answer pair. ParaphrasedAnswer is always
// populated: answers are paraphrased before they reach the store.
type Entry struct {
	ID                int64     `json:"id"`
	Prompt            string    `json:"prompt"`
	OriginalAnswer    string    `json:"original_answer"`
	ParaphrasedAnswer string    `json:"paraphrased_answer"`
	SourceProvider    string    `json:"source_provider"`
	Confidence        float64   `json:"confidence"`
	Keywords          []string  `json:"keywords"`
	CreatedAt         time.Time `json:"created_at"`
}

// Stats summarizes the stored entries for the reporting surfaces.
type Stats struct {
	TotalEntries      int64  `json:"total_entries"`
	DistinctSources   int64  `json:"distinct_sources"`
	MostCommonKeyword string `json:"most_common_keyword"`
}
