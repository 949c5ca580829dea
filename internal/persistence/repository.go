package persistence

import "shortside-backtest-go/internal/models"

// BarCache defines the interface for the local market-data cache.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the rest of the application. Cached entries are immutable once
// written: historical bars for a past (ticker, date) never change.
type BarCache interface {
	// SaveBars stores the raw minute bars for a ticker/date.
	SaveBars(ticker, date string, bars []models.Bar) error

	// LoadBars loads cached minute bars.
	// If no entry is found, it returns (nil, nil).
	LoadBars(ticker, date string) ([]models.Bar, error)

	// SaveCandidates stores the screened candidate set for a date.
	SaveCandidates(set *models.CandidateSet) error

	// LoadCandidates loads the candidate set for a date.
	// If no entry is found, it returns (nil, nil).
	LoadCandidates(date string) (*models.CandidateSet, error)

	// SavePreviousClose stores a resolved previous close for a ticker/date.
	SavePreviousClose(ticker, date string, close float64) error

	// LoadPreviousClose loads a cached previous close.
	// If no entry is found, it returns (0, false, nil).
	LoadPreviousClose(ticker, date string) (float64, bool, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
