package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/burnoutdv/santonian-archive/internal/util"
)

// tagSeparator joins tag names in aggregated queries; it never occurs in a tag name
const tagSeparator = "\x1f"

// LogRecord is one stored revision of a log
type LogRecord struct {
	ID         int64
	Name       string
	FolderID   int64
	FolderName string
	Content    string
	Audio      bool
	AudioData  []byte // only filled by GetRevision
	Hash       string
	Revision   int
	LastCheck  time.Time
	FirstEntry time.Time
	Tags       []string
}

// IngestOutcome classifies what an ingest did
type IngestOutcome int

const (
	// IngestInserted means the name was new and revision 0 was written
	IngestInserted IngestOutcome = iota
	// IngestUnchanged means the newest revision already had this fingerprint
	IngestUnchanged
	// IngestRevised means the content changed and a new revision was appended
	IngestRevised
)

func (o IngestOutcome) String() string {
	switch o {
	case IngestInserted:
		return "inserted"
	case IngestUnchanged:
		return "unchanged"
	case IngestRevised:
		return "revised"
	}
	return "unknown"
}

// IngestResult describes the row an ingest touched or wrote
type IngestResult struct {
	Outcome  IngestOutcome
	LogID    int64
	Revision int
	Hash     string
}

// ListOptions selects one page of a generic listing
type ListOptions struct {
	Offset      int
	Limit       int
	OrderField  string
	Descending  bool
	IncludeTags bool
}

// DefaultListLimit is used when ListOptions.Limit is not positive
const DefaultListLimit = 25

func (o ListOptions) direction() string {
	if o.Descending {
		return "DESC"
	}
	return "ASC"
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

func (o ListOptions) offset() int {
	if o.Offset < 0 {
		return 0
	}
	return o.Offset
}

// IngestText stores a text log body under name.
//
// Identical content to the newest revision only refreshes its last_check.
// Different content appends revision max+1. A name never seen before gets
// revision 0 in the folder addressed by folder, creating a placeholder
// folder for an unknown name.
func (s *Store) IngestText(name, content string, folder FolderRef) (*IngestResult, error) {
	return s.ingest(name, content, nil, util.Fingerprint(content), folder)
}

// IngestAudio stores an audio clip under name with the same revision rules
// as IngestText. The content column stays empty.
func (s *Store) IngestAudio(name string, clip []byte, folder FolderRef) (*IngestResult, error) {
	if clip == nil {
		clip = []byte{}
	}
	return s.ingest(name, "", clip, util.FingerprintBytes(clip), folder)
}

func (s *Store) ingest(name, content string, clip []byte, hash string, folder FolderRef) (*IngestResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("log name is empty")
	}

	var (
		latestID   int64
		latestHash string
		latestRev  int
	)
	err := s.db.QueryRow(s.q(`
		SELECT uid, hash, revision FROM {p}log
		WHERE name = ?
		ORDER BY revision DESC
		LIMIT 1
	`), name).Scan(&latestID, &latestHash, &latestRev)

	switch {
	case err == sql.ErrNoRows:
		return s.insertRevision(name, content, clip, hash, 0, folder)
	case err != nil:
		return nil, fmt.Errorf("failed to query revisions of %s: %w", name, err)
	}

	if latestHash == hash {
		if _, err := s.db.Exec(s.q(`UPDATE {p}log SET last_check = ? WHERE uid = ?`), s.stamp(), latestID); err != nil {
			return nil, fmt.Errorf("failed to touch log %s: %w", name, err)
		}
		util.DebugLog("DB: log %s unchanged at revision %d", name, latestRev)
		return &IngestResult{Outcome: IngestUnchanged, LogID: latestID, Revision: latestRev, Hash: hash}, nil
	}

	util.InfoLog("DB: log %s changed, writing revision %d", name, latestRev+1)
	res, err := s.insertRevision(name, content, clip, hash, latestRev+1, folder)
	if err != nil {
		return nil, err
	}
	res.Outcome = IngestRevised
	return res, nil
}

func (s *Store) insertRevision(name, content string, clip []byte, hash string, revision int, folder FolderRef) (*IngestResult, error) {
	folderID, err := s.ResolveFolder(folder)
	if err != nil {
		return nil, fmt.Errorf("log %s in folder %s: %w: %w", name, folder, util.ErrFolderResolution, err)
	}

	now := s.stamp()
	result, err := s.db.Exec(s.q(`
		INSERT INTO {p}log (name, folder, content, audio, aud_fl, hash, revision, last_check, first_entry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), name, folderID, content, boolToInt(clip != nil), clip, hash, revision, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, raceError(fmt.Sprintf("log %s revision %d", name, revision), err)
		}
		return nil, fmt.Errorf("failed to insert log %s: %w", name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get log ID: %w", err)
	}

	return &IngestResult{Outcome: IngestInserted, LogID: id, Revision: revision, Hash: hash}, nil
}

const logSelect = `
	SELECT l.uid, l.name, l.folder, f.name, l.content, l.audio, l.hash, l.revision,
	       l.last_check, l.first_entry,
	       COALESCE((SELECT group_concat(t.name, char(31)) FROM {p}tag_link tl
	                 JOIN {p}tag t ON t.uid = tl.tag
	                 WHERE tl.log = l.name), '')
	FROM {p}log l
	JOIN {p}folders f ON f.uid = l.folder
`

func scanLog(sc interface{ Scan(...any) error }) (*LogRecord, error) {
	r := &LogRecord{}
	var audio int
	var tags string
	err := sc.Scan(&r.ID, &r.Name, &r.FolderID, &r.FolderName, &r.Content, &audio, &r.Hash, &r.Revision,
		&r.LastCheck, &r.FirstEntry, &tags)
	if err != nil {
		return nil, err
	}
	r.Audio = audio == 1
	r.Tags = splitTags(tags)
	return r, nil
}

func splitTags(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, tagSeparator)
}

func (s *Store) queryLogs(query string, args ...any) ([]*LogRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []*LogRecord
	for rows.Next() {
		r, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, r)
	}
	return logs, rows.Err()
}

// Get returns every revision whose name contains pattern (case-insensitive),
// newest revision first. No match is util.ErrNotFound.
func (s *Store) Get(pattern string) ([]*LogRecord, error) {
	logs, err := s.queryLogs(s.q(logSelect+`
		WHERE l.name LIKE '%' || ? || '%' ESCAPE '\'
		ORDER BY l.revision DESC, l.uid DESC
	`), escapeLike(pattern))
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("log %q: %w", pattern, util.ErrNotFound)
	}
	return logs, nil
}

// GetRevision returns one revision of the log with exactly this name,
// including any audio payload. A negative revision selects the newest.
func (s *Store) GetRevision(name string, revision int) (*LogRecord, error) {
	query := s.q(logSelect + `WHERE l.name = ? AND l.revision = ?`)
	args := []any{name, revision}
	if revision < 0 {
		query = s.q(logSelect + `WHERE l.name = ? ORDER BY l.revision DESC LIMIT 1`)
		args = []any{name}
	}

	r, err := scanLog(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("log %s revision %d: %w", name, revision, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get log: %w", err)
	}

	if r.Audio {
		err := s.db.QueryRow(s.q(`SELECT aud_fl FROM {p}log WHERE uid = ?`), r.ID).Scan(&r.AudioData)
		if err != nil {
			return nil, fmt.Errorf("failed to read audio of %s: %w", name, err)
		}
	}
	return r, nil
}

// Revisions lists the revision numbers stored for name, oldest first
func (s *Store) Revisions(name string) ([]int, error) {
	rows, err := s.db.Query(s.q(`SELECT revision FROM {p}log WHERE name = ? ORDER BY revision`), name)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	var revs []int
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		revs = append(revs, r)
	}
	return revs, rows.Err()
}

// ListByFolder returns log names of one folder page by page (page counts from 0).
// The folder "*" matches every folder.
func (s *Store) ListByFolder(folder string, page, perPage int) ([]string, error) {
	match := escapeLike(folder)
	if folder == "*" || folder == "" {
		match = "%"
	}
	if perPage <= 0 {
		perPage = 20
	}
	if page < 0 {
		page = 0
	}

	rows, err := s.db.Query(s.q(`
		SELECT l.name FROM {p}log l
		JOIN {p}folders f ON f.uid = l.folder
		WHERE f.name LIKE ? ESCAPE '\'
		GROUP BY l.name
		ORDER BY MIN(l.uid)
		LIMIT ? OFFSET ?
	`), match, perPage, page*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs of %s: %w", folder, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan log name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// OrderByDateTag orders ListLogs by each log's date tag
const OrderByDateTag = "tag_date"

var logOrder = map[string]string{
	"uid":         "l.uid",
	"name":        "l.name",
	"content":     "l.content",
	"folder":      "f.name",
	"revision":    "l.revision",
	"last_check":  "l.last_check",
	"first_entry": "l.first_entry",
}

// ListLogs returns a page of log revisions. Unknown order fields fall back to uid.
//
// OrderByDateTag always aggregates tags and restricts the page to logs that
// either carry a date tag or carry no tag at all.
func (s *Store) ListLogs(opts ListOptions) ([]*LogRecord, error) {
	if opts.OrderField == OrderByDateTag {
		logs, err := s.queryLogs(s.q(logSelect+`
			WHERE NOT EXISTS (SELECT 1 FROM {p}tag_link tl WHERE tl.log = l.name)
			   OR EXISTS (SELECT 1 FROM {p}tag_link tl JOIN {p}tag t ON t.uid = tl.tag
			              WHERE tl.log = l.name AND t.type = 'date')
			ORDER BY (SELECT MIN(t.name) FROM {p}tag_link tl JOIN {p}tag t ON t.uid = tl.tag
			          WHERE tl.log = l.name AND t.type = 'date') `+opts.direction()+`, l.uid
			LIMIT ? OFFSET ?
		`), opts.limit(), opts.offset())
		return logs, err
	}

	field, ok := logOrder[opts.OrderField]
	if !ok {
		field = "l.uid"
	}
	logs, err := s.queryLogs(s.q(logSelect+`
		ORDER BY `+field+` `+opts.direction()+`
		LIMIT ? OFFSET ?
	`), opts.limit(), opts.offset())
	if err != nil {
		return nil, err
	}
	if !opts.IncludeTags {
		for _, l := range logs {
			l.Tags = nil
		}
	}
	return logs, nil
}

// Count returns the number of distinct log names
func (s *Store) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(s.q(`SELECT COUNT(DISTINCT name) FROM {p}log`)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return count, nil
}

// ResolveExtensionBlind maps a base name to the stored log name that adds a
// four character extension ("CALLX" -> "CALLX.LOG"), newest first.
func (s *Store) ResolveExtensionBlind(base string) (string, error) {
	var name string
	err := s.db.QueryRow(s.q(`
		SELECT name FROM {p}log
		WHERE name LIKE ? || '____' ESCAPE '\'
		ORDER BY uid DESC
		LIMIT 1
	`), escapeLike(base)).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("log %s: %w", base, util.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve log %s: %w", base, err)
	}
	return name, nil
}

// logName returns the stored spelling of a log name. An exact match wins over
// a case-insensitive one, so CALL.LOG never resolves to an older Call.log.
func (s *Store) logName(name string) (string, bool, error) {
	var canonical string
	err := s.db.QueryRow(s.q(`
		SELECT name FROM {p}log
		WHERE name = ? COLLATE NOCASE
		ORDER BY name = ? DESC, uid
		LIMIT 1
	`), name, name).Scan(&canonical)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up log %s: %w", name, err)
	}
	return canonical, true, nil
}
