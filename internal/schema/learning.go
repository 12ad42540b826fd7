package schema

import (
	"fmt"
	"strings"
)

// Course is an ordered collection of lessons.
type Course struct {
	Meta

	Title       string `json:"Title"`
	Description string `json:"Description,omitempty"`
	Level       string `json:"Level,omitempty"`
	IsPublished bool   `json:"IsPublished,omitempty"`
}

// Validate checks if the Course has valid field values.
func (c *Course) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(c.Title) > 200 {
		return fmt.Errorf("title must be 200 characters or less (got %d)", len(c.Title))
	}
	return nil
}

// Lesson belongs to a course.
type Lesson struct {
	Meta

	CourseID         string `json:"CourseId"`
	Title            string `json:"Title"`
	Content          string `json:"Content,omitempty"`
	SortOrder        int    `json:"SortOrder,omitempty"`
	EstimatedMinutes int    `json:"EstimatedMinutes,omitempty"`
}

// Validate checks if the Lesson has valid field values.
func (l *Lesson) Validate() error {
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if l.CourseID == "" {
		return fmt.Errorf("course id is required")
	}
	if l.EstimatedMinutes < 0 {
		return fmt.Errorf("estimated minutes cannot be negative (got %d)", l.EstimatedMinutes)
	}
	return nil
}

// Exercise types.
const (
	ExerciseMultipleChoice = "MultipleChoice"
	ExerciseFillBlank      = "FillBlank"
	ExerciseTranslation    = "Translation"
	ExerciseMatching       = "Matching"
)

// Exercise is a graded question attached to a lesson.
type Exercise struct {
	Meta

	LessonID string   `json:"LessonId"`
	Type     string   `json:"Type"`
	Question string   `json:"Question"`
	Options  []string `json:"Options,omitempty"`
	Answer   string   `json:"Answer"`
	Points   int      `json:"Points,omitempty"`
}

// Validate checks if the Exercise has valid field values.
func (e *Exercise) Validate() error {
	if e.LessonID == "" {
		return fmt.Errorf("lesson id is required")
	}
	if strings.TrimSpace(e.Question) == "" {
		return fmt.Errorf("question is required")
	}
	switch e.Type {
	case ExerciseMultipleChoice:
		if len(e.Options) < 2 {
			return fmt.Errorf("multiple choice exercise needs at least 2 options (got %d)", len(e.Options))
		}
	case ExerciseFillBlank, ExerciseTranslation, ExerciseMatching:
	default:
		return fmt.Errorf("unknown exercise type %q", e.Type)
	}
	if e.Answer == "" {
		return fmt.Errorf("answer is required")
	}
	if e.Points < 0 {
		return fmt.Errorf("points cannot be negative (got %d)", e.Points)
	}
	return nil
}
