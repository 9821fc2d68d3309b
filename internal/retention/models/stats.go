package models

// Stats is the compliance dashboard summary over every flag.
type Stats struct {
	TotalFlagged          int                        `json:"totalFlagged"`
	TotalDeleted          int                        `json:"totalDeleted"`
	TotalRetained         int                        `json:"totalRetained"`
	TotalPending          int                        `json:"totalPending"`
	EstimatedStorageSaved int                        `json:"estimatedStorageSaved"`
	ByDataType            map[DataType]DataTypeStats `json:"byDataType"`
	Timeline              []TimelineEntry            `json:"timeline"`
}

type DataTypeStats struct {
	Flagged  int `json:"flagged"`
	Deleted  int `json:"deleted"`
	Retained int `json:"retained"`
}

// TimelineEntry counts flags created, deleted and retained on one UTC day.
type TimelineEntry struct {
	Date     string `json:"date"`
	Flagged  int    `json:"flagged"`
	Deleted  int    `json:"deleted"`
	Retained int    `json:"retained"`
}
