// Package schema defines the entity types that lexisync synchronizes.
//
// # Overview
//
// Every synchronized table stores one entity type. Each type embeds Meta, which
// carries the identity, audit and concurrency columns the sync engine relies on:
//
//	{
//	  "Id": "5",
//	  "Name": "Travel",
//	  "CreatedAt": "2026-10-01T08:00:00Z",
//	  "CreatedBy": "user-17",
//	  "RowVersion": "01JA3K6Y0W5V8N2Q9T4R7S1M3B"
//	}
//
// The domain fields use the PascalCase wire names the mobile and desktop clients
// already speak. Meta fields are owned by the store: clients may echo them back,
// but the applier discards everything except the id before writing.
//
// # Tables
//
//   - Users, Roles - administrative tables, gated by the Admin role
//   - Categories, VocabularyItems - the vocabulary catalogue
//   - Courses, Lessons, Exercises - structured learning content
//
// # Adding a type
//
// Define a struct that embeds Meta, give it a Validate method, and register it
// in internal/catalog. Nothing in the sync engine changes.
package schema
