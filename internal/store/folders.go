package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/burnoutdv/santonian-archive/internal/util"
)

const (
	// PlaceholderFloor is the ceiling of real remote ids; placeholders sit above it
	PlaceholderFloor = 100000

	// FirstPlaceholderID is the first locally allocated external id
	FirstPlaceholderID = 100001
)

// Folder is the local identity record of a remote folder
type Folder struct {
	ID          int64
	Name        string
	ExternalID  int64
	Placeholder bool
	LastCheck   time.Time
	FirstEntry  time.Time
}

// FolderRef addresses a folder by display name, by external id or, for
// callers that already resolved it, by surrogate key
type FolderRef struct {
	kind       refKind
	name       string
	externalID int64
	key        int64
}

type refKind int

const (
	refName refKind = iota
	refExternalID
	refKey
)

// ByName references a folder by its (case-insensitive) display name
func ByName(name string) FolderRef {
	return FolderRef{kind: refName, name: name}
}

// ByExternalID references a folder by the remote's numeric id
func ByExternalID(id int64) FolderRef {
	return FolderRef{kind: refExternalID, externalID: id}
}

// ByKey references a folder by its local surrogate key
func ByKey(uid int64) FolderRef {
	return FolderRef{kind: refKey, key: uid}
}

// IsExternalID reports whether the reference carries an external id
func (r FolderRef) IsExternalID() bool {
	return r.kind == refExternalID
}

// Name returns the referenced display name ("" for other references)
func (r FolderRef) Name() string {
	return r.name
}

// ExternalID returns the referenced external id (0 for other references)
func (r FolderRef) ExternalID() int64 {
	return r.externalID
}

func (r FolderRef) String() string {
	switch r.kind {
	case refExternalID:
		return fmt.Sprintf("#%d", r.externalID)
	case refKey:
		return fmt.Sprintf("uid %d", r.key)
	}
	return r.name
}

// RegisterOutcome is the result of declaring a name/external-id pair
type RegisterOutcome int

const (
	// RegisterCreated means a new confirmed folder row was inserted
	RegisterCreated RegisterOutcome = iota
	// RegisterKnown means a row matched and was only touched
	RegisterKnown
	// RegisterConfirmed means a placeholder row received its real external id
	RegisterConfirmed
	// RegisterAmbiguous means name and id matched two different rows; nothing was written
	RegisterAmbiguous
)

func (o RegisterOutcome) String() string {
	switch o {
	case RegisterCreated:
		return "created"
	case RegisterKnown:
		return "known"
	case RegisterConfirmed:
		return "confirmed"
	case RegisterAmbiguous:
		return "ambiguous"
	}
	return "unknown"
}

// RegisterResult reports what RegisterFolder did and which row it settled on
type RegisterResult struct {
	Outcome  RegisterOutcome
	FolderID int64 // surrogate key; 0 when ambiguous
}

const folderColumns = `uid, name, external_id, placeholder, last_check, first_entry`

func scanFolder(sc interface{ Scan(...any) error }) (*Folder, error) {
	f := &Folder{}
	var placeholder int
	var lastCheck, firstEntry sql.NullTime
	if err := sc.Scan(&f.ID, &f.Name, &f.ExternalID, &placeholder, &lastCheck, &firstEntry); err != nil {
		return nil, err
	}
	f.Placeholder = placeholder == 1
	f.LastCheck = lastCheck.Time
	f.FirstEntry = firstEntry.Time
	return f, nil
}

// findFolders returns every row matching the reference
func (s *Store) findFolders(ref FolderRef) ([]*Folder, error) {
	query := s.q(`SELECT ` + folderColumns + ` FROM {p}folders WHERE name = ?`)
	arg := any(ref.name)
	switch ref.kind {
	case refExternalID:
		query = s.q(`SELECT ` + folderColumns + ` FROM {p}folders WHERE external_id = ?`)
		arg = ref.externalID
	case refKey:
		query = s.q(`SELECT ` + folderColumns + ` FROM {p}folders WHERE uid = ?`)
		arg = ref.key
	}

	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// GetFolder returns the folder addressed by ref, or nil if none exists
func (s *Store) GetFolder(ref FolderRef) (*Folder, error) {
	folders, err := s.findFolders(ref)
	if err != nil {
		return nil, err
	}
	switch len(folders) {
	case 0:
		return nil, nil
	case 1:
		return folders[0], nil
	}
	return nil, fmt.Errorf("folder %s: %w", ref, util.ErrAmbiguous)
}

// ResolveFolder returns the surrogate key of the referenced folder.
//
// A name that is not yet known gets a placeholder folder with the next free
// external id above PlaceholderFloor. A bare external id or key never creates
// a row and fails with util.ErrNotFound.
func (s *Store) ResolveFolder(ref FolderRef) (int64, error) {
	folders, err := s.findFolders(ref)
	if err != nil {
		return 0, err
	}

	switch {
	case len(folders) == 1:
		return folders[0].ID, nil
	case len(folders) > 1:
		util.ErrorLog("DB: folder lookup %s returned %d rows", ref, len(folders))
		for i, f := range folders {
			if i > 3 {
				break
			}
			util.InfoLog("DB:   %d - %d / %s", f.ID, f.ExternalID, f.Name)
		}
		return 0, fmt.Errorf("folder %s: %w", ref, util.ErrAmbiguous)
	}

	if ref.kind != refName {
		return 0, fmt.Errorf("folder %s: %w", ref, util.ErrNotFound)
	}
	if strings.TrimSpace(ref.name) == "" {
		return 0, fmt.Errorf("folder name is empty: %w", util.ErrNotFound)
	}

	return s.createPlaceholder(ref.name)
}

// nextPlaceholderID computes the external id for a new placeholder folder
func nextPlaceholderID(maxID sql.NullInt64) int64 {
	if !maxID.Valid || maxID.Int64 < PlaceholderFloor {
		return FirstPlaceholderID
	}
	return maxID.Int64 + 1
}

func (s *Store) createPlaceholder(name string) (int64, error) {
	var folderID int64

	// MAX and INSERT share one transaction; a second writer can still race the
	// unique index, which is reported as ErrConstraintRace
	err := s.Transaction(func(tx *sql.Tx) error {
		var maxID sql.NullInt64
		if err := tx.QueryRow(s.q(`SELECT MAX(external_id) FROM {p}folders`)).Scan(&maxID); err != nil {
			return fmt.Errorf("failed to read highest external id: %w", err)
		}
		externalID := nextPlaceholderID(maxID)

		now := s.stamp()
		result, err := tx.Exec(s.q(`
			INSERT INTO {p}folders (name, external_id, placeholder, last_check, first_entry)
			VALUES (?, ?, 1, ?, ?)
		`), name, externalID, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return raceError(fmt.Sprintf("placeholder folder %q", name), err)
			}
			return fmt.Errorf("failed to insert placeholder folder: %w", err)
		}

		folderID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get folder ID: %w", err)
		}
		util.DebugLog("DB: created placeholder folder %q with external id %d", name, externalID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return folderID, nil
}

// RegisterFolder declares that name is known remotely under externalID.
//
// A single matching row (by name or by id) is touched and reported as known;
// if that row is a placeholder matched by name it is confirmed with the real id.
// Two different matching rows mean the unique fields disagree: nothing is
// written and util.ErrAmbiguous is returned. FolderID is the row logs of this
// folder belong to, which for a partial match may carry a different external id.
func (s *Store) RegisterFolder(name string, externalID int64) (*RegisterResult, error) {
	rows, err := s.db.Query(s.q(`SELECT `+folderColumns+` FROM {p}folders WHERE name = ? OR external_id = ?`),
		name, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	var matches []*Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		matches = append(matches, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		now := s.stamp()
		result, err := s.db.Exec(s.q(`
			INSERT INTO {p}folders (name, external_id, placeholder, last_check, first_entry)
			VALUES (?, ?, 0, ?, ?)
		`), name, externalID, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, raceError(fmt.Sprintf("folder %s:%d", name, externalID), err)
			}
			return nil, fmt.Errorf("failed to insert folder: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get folder ID: %w", err)
		}
		return &RegisterResult{Outcome: RegisterCreated, FolderID: id}, nil

	case 1:
		f := matches[0]
		if f.Placeholder && strings.EqualFold(f.Name, name) {
			_, err := s.db.Exec(s.q(`
				UPDATE {p}folders SET external_id = ?, placeholder = 0, last_check = ?
				WHERE uid = ?
			`), externalID, s.stamp(), f.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to confirm folder %q: %w", name, err)
			}
			util.InfoLog("DB: confirmed folder %q: placeholder %d -> %d", name, f.ExternalID, externalID)
			return &RegisterResult{Outcome: RegisterConfirmed, FolderID: f.ID}, nil
		}

		if f.ExternalID != externalID || !strings.EqualFold(f.Name, name) {
			util.WarnLog("DB: folder %s:%d only partially matches stored %s:%d", name, externalID, f.Name, f.ExternalID)
		} else {
			util.DebugLog("DB: folder %s:%d already exists", name, externalID)
		}
		if err := s.touchFolder(f.ID); err != nil {
			return nil, err
		}
		return &RegisterResult{Outcome: RegisterKnown, FolderID: f.ID}, nil
	}

	util.ErrorLog("DB: name and id in different entries: %s:%d | %s:%d",
		matches[0].Name, matches[0].ExternalID, matches[1].Name, matches[1].ExternalID)
	return &RegisterResult{Outcome: RegisterAmbiguous}, fmt.Errorf("folder %s:%d: %w", name, externalID, util.ErrAmbiguous)
}

func (s *Store) touchFolder(id int64) error {
	_, err := s.db.Exec(s.q(`UPDATE {p}folders SET last_check = ? WHERE uid = ?`), s.stamp(), id)
	if err != nil {
		return fmt.Errorf("failed to touch folder: %w", err)
	}
	return nil
}

// ExternalIDByName returns the remote id of a folder, matched case-insensitively
func (s *Store) ExternalIDByName(name string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(s.q(`SELECT external_id FROM {p}folders WHERE name = ? LIMIT 1`), name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up folder id: %w", err)
	}
	return id, true, nil
}

// FolderNameByExternalID returns the display name of the folder with the remote id
func (s *Store) FolderNameByExternalID(id int64) (string, bool, error) {
	var name string
	err := s.db.QueryRow(s.q(`SELECT name FROM {p}folders WHERE external_id = ?`), id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up folder name: %w", err)
	}
	return name, true, nil
}

var folderOrder = map[string]string{
	"uid":         "uid",
	"external_id": "external_id",
	"name":        "name",
	"last_check":  "last_check",
	"first_entry": "first_entry",
}

// ListFolders returns one page of folders
func (s *Store) ListFolders(opts ListOptions) ([]*Folder, error) {
	field, ok := folderOrder[opts.OrderField]
	if !ok {
		field = "uid"
	}
	query := s.q(`SELECT ` + folderColumns + ` FROM {p}folders ORDER BY ` + field + ` ` + opts.direction() + ` LIMIT ? OFFSET ?`)

	rows, err := s.db.Query(query, opts.limit(), opts.offset())
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// CountFolders returns the number of known folders
func (s *Store) CountFolders() (int, error) {
	var count int
	if err := s.db.QueryRow(s.q(`SELECT COUNT(*) FROM {p}folders`)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count folders: %w", err)
	}
	return count, nil
}
