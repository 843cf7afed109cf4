package evaluate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/futig/compliance-rag/internal/entity"
)

// Item is one evaluation question with its reference answer.
type Item struct {
	Question string `json:"question"`
	// Answer and ExpectedAnswer are both accepted; Answer wins.
	Answer         string `json:"answer,omitempty"`
	ExpectedAnswer string `json:"expected_answer,omitempty"`
	Category       string `json:"category,omitempty"`
	Difficulty     string `json:"difficulty,omitempty"`
}

func (it Item) Expected() string {
	if it.Answer != "" {
		return it.Answer
	}
	return it.ExpectedAnswer
}

func (it Item) category() string {
	if strings.TrimSpace(it.Category) == "" {
		return "Unknown"
	}
	return it.Category
}

// ReadItems decodes a JSON array of items. Items without a question are
// rejected.
func ReadItems(r io.Reader) ([]Item, error) {
	var items []Item
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: evaluation set: %w", entity.ErrInvalidFormat, err)
	}
	for i, it := range items {
		if strings.TrimSpace(it.Question) == "" {
			return nil, fmt.Errorf("%w: item %d has no question", entity.ErrMissingField, i)
		}
	}
	return items, nil
}

func LoadItems(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open evaluation set: %w", err)
	}
	defer f.Close()
	return ReadItems(f)
}
