package models

import "time"

// DataPoint represents a single consumption reading in Wh
type DataPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// StatisticDataPoint is a DataPoint shaped for a cumulative statistics series
type StatisticDataPoint struct {
	Start time.Time `json:"start"`
	State float64   `json:"state"`
	Sum   float64   `json:"sum"` // Running total including this point
}

// FetchWindow is the date range covered by one API request. To is exclusive on the provider side.
type FetchWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}
