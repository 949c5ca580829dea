package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v3"

	"shortside-backtest-go/internal/models"
)

// badgerCache is the BadgerDB implementation of the BarCache.
// Entries are stored as JSON blobs under composite keys:
//
//	bars/<ticker>/<date>
//	candidates/<date>
//	prevclose/<ticker>/<date>
type badgerCache struct {
	db *badger.DB
}

// NewBadgerCache creates a cache backed by an on-disk BadgerDB database.
func NewBadgerCache(dbPath string) (BarCache, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy; errors still surface from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerCache{db: db}, nil
}

// NewInMemoryCache creates a cache that lives only for the process lifetime.
// Used by tests and for runs where no cache directory is configured.
func NewInMemoryCache() (BarCache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerCache{db: db}, nil
}

func barsKey(ticker, date string) []byte {
	return []byte(fmt.Sprintf("bars/%s/%s", ticker, date))
}

func candidatesKey(date string) []byte {
	return []byte("candidates/" + date)
}

func prevCloseKey(ticker, date string) []byte {
	return []byte(fmt.Sprintf("prevclose/%s/%s", ticker, date))
}

func (c *badgerCache) set(key []byte, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// get reads a value; a missing key yields (nil, nil).
func (c *badgerCache) get(key []byte) ([]byte, error) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *badgerCache) SaveBars(ticker, date string, bars []models.Bar) error {
	data, err := json.Marshal(bars)
	if err != nil {
		return err
	}
	return c.set(barsKey(ticker, date), data)
}

func (c *badgerCache) LoadBars(ticker, date string) ([]models.Bar, error) {
	data, err := c.get(barsKey(ticker, date))
	if err != nil || data == nil {
		return nil, err
	}
	var bars []models.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func (c *badgerCache) SaveCandidates(set *models.CandidateSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return c.set(candidatesKey(set.Date), data)
}

func (c *badgerCache) LoadCandidates(date string) (*models.CandidateSet, error) {
	data, err := c.get(candidatesKey(date))
	if err != nil || data == nil {
		return nil, err
	}
	var set models.CandidateSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (c *badgerCache) SavePreviousClose(ticker, date string, close float64) error {
	return c.set(prevCloseKey(ticker, date), []byte(strconv.FormatFloat(close, 'f', -1, 64)))
}

func (c *badgerCache) LoadPreviousClose(ticker, date string) (float64, bool, error) {
	data, err := c.get(prevCloseKey(ticker, date))
	if err != nil || data == nil {
		return 0, false, err
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (c *badgerCache) Close() error {
	return c.db.Close()
}
