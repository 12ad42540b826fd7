package catalog

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiflow/lexisync/internal/auth"
	"github.com/lexiflow/lexisync/internal/db"
	"github.com/lexiflow/lexisync/internal/sync"
)

func setupRegistry(t *testing.T) *sync.Registry {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	registry := sync.NewRegistry()
	require.NoError(t, Register(registry, database, sync.TableOptions{Logger: log.New(io.Discard, "", 0)}))
	return registry
}

func TestRegister(t *testing.T) {
	registry := setupRegistry(t)

	assert.Equal(t, []string{"Users", "Roles", "Categories", "VocabularyItems", "Courses", "Lessons", "Exercises"},
		registry.Names())

	users, err := registry.Resolve("users")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, users.RequiredRole)

	lessons, err := registry.Resolve("Lessons")
	require.NoError(t, err)
	assert.Equal(t, "", lessons.RequiredRole)
}

func TestRegisteredTablesWork(t *testing.T) {
	registry := setupRegistry(t)
	engine := sync.New(sync.Config{Registry: registry, Logger: log.New(io.Discard, "", 0)})
	ctx := context.Background()
	p := &auth.Principal{ID: "instructor-1"}

	payloads := map[string]string{
		"Categories":      `{"Name":"Travel"}`,
		"VocabularyItems": `{"Term":"旅行","Reading":"りょこう","LanguageCode":"ja","DifficultyLevel":2}`,
		"Courses":         `{"Title":"JLPT N5"}`,
		"Lessons":         `{"Title":"Greetings","CourseId":"1"}`,
		"Exercises":       `{"LessonId":"1","Type":"FillBlank","Question":"お___ようございます","Answer":"は"}`,
	}
	for table, data := range payloads {
		result, err := engine.Push(ctx, table, []sync.ChangeEnvelope{{
			EntityID: "1",
			Action:   sync.ActionCreate,
			Payload:  sync.StringPtr(data),
		}}, p)
		require.NoError(t, err, table)
		assert.Equal(t, 1, result.CreatedCount, "%s: %v", table, result.PerItemErrors)

		envs, err := engine.Pull(ctx, table, nil, p)
		require.NoError(t, err, table)
		assert.Len(t, envs, 1, table)
	}
}

func TestApplyRoles(t *testing.T) {
	registry := setupRegistry(t)

	require.NoError(t, ApplyRoles(registry, map[string]string{"courses": "Instructor", "Roles": ""}))

	courses, _ := registry.Resolve("Courses")
	assert.Equal(t, "Instructor", courses.RequiredRole)
	roles, _ := registry.Resolve("Roles")
	assert.Equal(t, "", roles.RequiredRole)

	// A bad reload keeps the roles already in force.
	err := ApplyRoles(registry, map[string]string{"Courses": "", "Invoices": "Admin"})
	assert.ErrorIs(t, err, sync.ErrUnsupportedTable)
	courses, _ = registry.Resolve("Courses")
	assert.Equal(t, "Instructor", courses.RequiredRole)

	// Tables missing from a later config go back to their defaults.
	require.NoError(t, ApplyRoles(registry, map[string]string{"Lessons": "Instructor"}))
	courses, _ = registry.Resolve("Courses")
	assert.Equal(t, "", courses.RequiredRole)
	roles, _ = registry.Resolve("Roles")
	assert.Equal(t, auth.RoleAdmin, roles.RequiredRole)

	ResetRoles(registry)
	courses, _ = registry.Resolve("Courses")
	assert.Equal(t, "", courses.RequiredRole)
	roles, _ = registry.Resolve("Roles")
	assert.Equal(t, auth.RoleAdmin, roles.RequiredRole)
}
