package schema

import (
	"fmt"
	"strings"
)

// Category groups vocabulary items, optionally nested under a parent.
type Category struct {
	Meta

	Name             string `json:"Name"`
	Description      string `json:"Description,omitempty"`
	Level            string `json:"Level,omitempty"`        // JLPT level, e.g. N5
	CategoryType     string `json:"CategoryType,omitempty"` // Vocabulary, Grammar, Kanji
	ParentCategoryID string `json:"ParentCategoryId,omitempty"`
	DisplayOrder     int    `json:"DisplayOrder,omitempty"`
	ColorCode        string `json:"ColorCode,omitempty"`
	IsPublic         bool   `json:"IsPublic,omitempty"`
}

// Validate checks if the Category has valid field values.
func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(c.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(c.Name))
	}
	if c.ParentCategoryID != "" && c.ParentCategoryID == c.ID {
		return fmt.Errorf("category cannot be its own parent")
	}
	return nil
}

// VocabularyItem is a single term with its readings, definitions and examples.
type VocabularyItem struct {
	Meta

	Term            string        `json:"Term"`
	Reading         string        `json:"Reading,omitempty"`
	LanguageCode    string        `json:"LanguageCode,omitempty"`
	CategoryID      string        `json:"CategoryId,omitempty"`
	DifficultyLevel int           `json:"DifficultyLevel,omitempty"`
	Notes           string        `json:"Notes,omitempty"`
	Tags            []string      `json:"Tags,omitempty"`
	IsPublic        bool          `json:"IsPublic,omitempty"`
	Definitions     []Definition  `json:"Definitions,omitempty"`
	Examples        []Example     `json:"Examples,omitempty"`
	Translations    []Translation `json:"Translations,omitempty"`
}

// Definition is one meaning of a vocabulary item.
type Definition struct {
	Text         string `json:"Text"`
	PartOfSpeech string `json:"PartOfSpeech,omitempty"`
	SortOrder    int    `json:"SortOrder,omitempty"`
}

// Example is a usage sentence.
type Example struct {
	Text            string `json:"Text"`
	Translation     string `json:"Translation,omitempty"`
	DifficultyLevel int    `json:"DifficultyLevel,omitempty"`
}

// Translation renders the term in another language.
type Translation struct {
	Text         string `json:"Text"`
	LanguageCode string `json:"LanguageCode"`
}

// Validate checks if the VocabularyItem has valid field values.
func (v *VocabularyItem) Validate() error {
	if strings.TrimSpace(v.Term) == "" {
		return fmt.Errorf("term is required")
	}
	if len(v.Term) > 100 {
		return fmt.Errorf("term must be 100 characters or less (got %d)", len(v.Term))
	}
	if v.DifficultyLevel < 0 || v.DifficultyLevel > 5 {
		return fmt.Errorf("difficulty level must be between 0 and 5 (got %d)", v.DifficultyLevel)
	}
	for i, d := range v.Definitions {
		if strings.TrimSpace(d.Text) == "" {
			return fmt.Errorf("definition %d: text is required", i)
		}
	}
	for i, ex := range v.Examples {
		if strings.TrimSpace(ex.Text) == "" {
			return fmt.Errorf("example %d: text is required", i)
		}
	}
	for i, tr := range v.Translations {
		if tr.Text == "" || tr.LanguageCode == "" {
			return fmt.Errorf("translation %d: text and language code are required", i)
		}
	}
	return nil
}
