package store

// Schema v1 - folders, revisioned logs, tags, tag links and stats.
// {p} is replaced with the configured table prefix.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS {p}schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Remote folders; external_id is the remote's opaque numeric id.
-- placeholder = 1 marks a locally allocated id (>= 100001) awaiting confirmation.
CREATE TABLE IF NOT EXISTS {p}folders (
  uid INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE COLLATE NOCASE,
  external_id INTEGER NOT NULL UNIQUE,
  placeholder INTEGER NOT NULL DEFAULT 0 CHECK (placeholder IN (0, 1)),
  last_check DATETIME,
  first_entry DATETIME
);

-- One row per log revision
CREATE TABLE IF NOT EXISTS {p}log (
  uid INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  folder INTEGER NOT NULL REFERENCES {p}folders(uid),
  content TEXT NOT NULL DEFAULT '',
  audio INTEGER NOT NULL DEFAULT 0 CHECK (audio IN (0, 1)),
  aud_fl BLOB,
  hash TEXT NOT NULL,
  revision INTEGER NOT NULL,
  last_check DATETIME NOT NULL,
  first_entry DATETIME NOT NULL,
  UNIQUE (name, revision)
);

CREATE INDEX IF NOT EXISTS {p}idx_log_name ON {p}log(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS {p}idx_log_folder ON {p}log(folder);

CREATE TABLE IF NOT EXISTS {p}tag (
  uid INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL DEFAULT 'name' CHECK (type IN ('name', 'date', 'entity'))
);

-- Links reference the log by name so a tag covers every revision
CREATE TABLE IF NOT EXISTS {p}tag_link (
  uid INTEGER PRIMARY KEY AUTOINCREMENT,
  log TEXT NOT NULL,
  tag INTEGER NOT NULL REFERENCES {p}tag(uid),
  changed DATETIME NOT NULL,
  UNIQUE (log, tag)
);

CREATE INDEX IF NOT EXISTS {p}idx_tag_link_log ON {p}tag_link(log);

CREATE TABLE IF NOT EXISTS {p}stats (
  uid INTEGER PRIMARY KEY AUTOINCREMENT,
  property TEXT NOT NULL UNIQUE,
  value TEXT
);
`
