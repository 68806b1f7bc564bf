package pricing

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/digkill/SpeakCoachBot/internal/models"
)

// DefaultPrices are the integer ruble amounts used when no price file exists.
var DefaultPrices = map[models.Tariff]int{
	models.TariffWeek:   299,
	models.TariffMonth:  799,
	models.TariffSingle: 50,
}

// Store keeps tariff prices in a JSON file. It is an explicit constructed
// object handed to consumers; concurrent readers and the admin writer share
// it under a mutex.
type Store struct {
	path   string
	mu     sync.RWMutex
	prices map[models.Tariff]int
}

// NewStore loads prices from the file, creating it with defaults when absent
// or unreadable.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, prices: make(map[models.Tariff]int)}

	data, err := os.ReadFile(path)
	if err != nil || json.Unmarshal(data, &s.prices) != nil || len(s.prices) == 0 {
		// A failed decode may have left stray keys behind; start clean.
		s.prices = make(map[models.Tariff]int, len(DefaultPrices))
		for tariff, amount := range DefaultPrices {
			s.prices[tariff] = amount
		}
		if err := s.persist(); err != nil {
			return nil, err
		}
	}
	for tariff, amount := range DefaultPrices {
		if _, ok := s.prices[tariff]; !ok {
			s.prices[tariff] = amount
		}
	}
	return s, nil
}

// Price returns the amount for a tariff, and whether the tariff is known.
func (s *Store) Price(tariff models.Tariff) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	amount, ok := s.prices[tariff]
	return amount, ok
}

// All returns a copy of the current price table.
func (s *Store) All() map[models.Tariff]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Tariff]int, len(s.prices))
	for tariff, amount := range s.prices {
		out[tariff] = amount
	}
	return out
}

// SetPrice updates one tariff and persists the table.
func (s *Store) SetPrice(tariff models.Tariff, amount int) error {
	if !tariff.Valid() {
		return fmt.Errorf("unknown tariff: %s", tariff)
	}
	if amount <= 0 {
		return fmt.Errorf("price must be positive, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[tariff] = amount
	return s.persist()
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.prices, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal prices: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write prices file: %w", err)
	}
	return nil
}
