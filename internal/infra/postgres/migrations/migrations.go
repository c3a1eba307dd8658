package migrations

import (
	_ "embed"

	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_reading_tasks.sql
var createReadingTasksSQL string

//go:embed 0002_create_reading_sessions.sql
var createReadingSessionsSQL string

//go:embed 0003_create_test_scores.sql
var createTestScoresSQL string

var Migrations = migrate.NewMigrations()
