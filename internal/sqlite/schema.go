package sqlite

// Schema DDL. The database is a query index rebuilt from events.jsonl on
// every Attach.
const (
	createEvents = `CREATE TABLE events (
    timestamp INTEGER PRIMARY KEY,
    created_at TEXT NOT NULL,
    description TEXT NOT NULL,
    changes TEXT NOT NULL
);`

	createAspectChanges = `CREATE TABLE aspect_changes (
    timestamp INTEGER NOT NULL,
    aspect_type TEXT NOT NULL,
    aspect_id TEXT NOT NULL,
    op TEXT NOT NULL,
    PRIMARY KEY (timestamp, aspect_type, aspect_id),
    FOREIGN KEY (timestamp) REFERENCES events(timestamp) ON DELETE CASCADE
);`
)

// Index DDL for common queries.
const (
	idxAspectChangesAspect = `CREATE INDEX idx_aspect_changes_aspect ON aspect_changes(aspect_type, aspect_id);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	"PRAGMA foreign_keys = ON",
	createEvents,
	createAspectChanges,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxAspectChangesAspect,
}
