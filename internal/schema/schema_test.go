package schema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		entity  Entity
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid category",
			entity: &Category{Meta: Meta{ID: "5"}, Name: "Travel"},
		},
		{
			name:    "category missing name",
			entity:  &Category{Meta: Meta{ID: "5"}},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "category is its own parent",
			entity:  &Category{Meta: Meta{ID: "5"}, Name: "Loop", ParentCategoryID: "5"},
			wantErr: true,
			errMsg:  "own parent",
		},
		{
			name: "valid vocabulary item",
			entity: &VocabularyItem{
				Term:            "旅行",
				Reading:         "りょこう",
				DifficultyLevel: 2,
				Definitions:     []Definition{{Text: "travel", PartOfSpeech: "noun"}},
				Translations:    []Translation{{Text: "travel", LanguageCode: "en"}},
			},
		},
		{
			name:    "vocabulary difficulty out of range",
			entity:  &VocabularyItem{Term: "旅行", DifficultyLevel: 9},
			wantErr: true,
			errMsg:  "between 0 and 5",
		},
		{
			name:    "vocabulary translation missing language",
			entity:  &VocabularyItem{Term: "旅行", Translations: []Translation{{Text: "travel"}}},
			wantErr: true,
			errMsg:  "translation 0",
		},
		{
			name:    "user bad email",
			entity:  &User{Username: "aiko", Email: "not-an-email"},
			wantErr: true,
			errMsg:  "invalid email",
		},
		{
			name:   "valid user",
			entity: &User{Username: "aiko", Email: "aiko@example.com", IsActive: true},
		},
		{
			name:    "role missing name",
			entity:  &Role{},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "lesson missing course",
			entity:  &Lesson{Title: "Greetings"},
			wantErr: true,
			errMsg:  "course id is required",
		},
		{
			name:    "multiple choice needs options",
			entity:  &Exercise{LessonID: "l1", Type: ExerciseMultipleChoice, Question: "?", Answer: "a", Options: []string{"a"}},
			wantErr: true,
			errMsg:  "at least 2 options",
		},
		{
			name:    "unknown exercise type",
			entity:  &Exercise{LessonID: "l1", Type: "Essay", Question: "?", Answer: "a"},
			wantErr: true,
			errMsg:  "unknown exercise type",
		},
		{
			name:   "valid course",
			entity: &Course{Title: "JLPT N5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entity.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestMeta_LastChanged(t *testing.T) {
	created := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	modified := created.Add(time.Hour)
	deleted := created.Add(2 * time.Hour)

	m := Meta{CreatedAt: created}
	if got := m.LastChanged(); !got.Equal(created) {
		t.Errorf("LastChanged() = %v, want %v", got, created)
	}

	m.ModifiedAt = &modified
	if got := m.LastChanged(); !got.Equal(modified) {
		t.Errorf("LastChanged() = %v, want %v", got, modified)
	}

	m.DeletedAt = &deleted
	if got := m.LastChanged(); !got.Equal(deleted) {
		t.Errorf("LastChanged() = %v, want %v", got, deleted)
	}
}

func TestCategory_WireNames(t *testing.T) {
	var c Category
	if err := json.Unmarshal([]byte(`{"Name":"Travel","ParentCategoryId":"1","DisplayOrder":3}`), &c); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if c.Name != "Travel" || c.ParentCategoryID != "1" || c.DisplayOrder != 3 {
		t.Errorf("decoded category = %+v", c)
	}

	data, err := json.Marshal(&Category{Name: "Travel"})
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if strings.Contains(string(data), "CreatedAt") {
		t.Errorf("zero meta should be omitted, got %s", data)
	}
}
