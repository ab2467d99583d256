package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/burnoutdv/santonian-archive/internal/util"
)

// TagType classifies a tag
type TagType string

const (
	TagName   TagType = "name"
	TagDate   TagType = "date"
	TagEntity TagType = "entity"
)

// ParseTagType maps input to a TagType by exact match; anything else is TagName
func ParseTagType(s string) TagType {
	switch TagType(s) {
	case TagDate:
		return TagDate
	case TagEntity:
		return TagEntity
	}
	return TagName
}

var (
	// ErrTagNotFound is returned by LinkTag when the tag does not exist
	ErrTagNotFound = fmt.Errorf("tag %w", util.ErrNotFound)

	// ErrLogNotFound is returned by LinkTag when no log has the name
	ErrLogNotFound = fmt.Errorf("log %w", util.ErrNotFound)
)

// Tag is a named label
type Tag struct {
	ID    int64
	Name  string
	Type  TagType
	Links int
}

// tagKey is the stored form of a tag name
func tagKey(name string) string {
	return strings.TrimSpace(name)
}

// CreateOrUpdateTag declares a tag with the given type.
// It returns the written tag, or nil when the tag already existed with that type.
func (s *Store) CreateOrUpdateTag(name, tagType string) (*Tag, error) {
	name = tagKey(name)
	if name == "" {
		return nil, fmt.Errorf("tag name is empty")
	}
	typ := ParseTagType(tagType)

	existing, err := s.GetTag(name)
	if err != nil && !errors.Is(err, util.ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		if existing.Type == typ {
			return nil, nil
		}
		if _, err := s.db.Exec(s.q(`UPDATE {p}tag SET type = ? WHERE uid = ?`), string(typ), existing.ID); err != nil {
			return nil, fmt.Errorf("failed to update tag %s: %w", name, err)
		}
		util.DebugLog("DB: tag %s changed type %s -> %s", name, existing.Type, typ)
		existing.Type = typ
		return existing, nil
	}

	result, err := s.db.Exec(s.q(`INSERT INTO {p}tag (name, type) VALUES (?, ?)`), name, string(typ))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, raceError(fmt.Sprintf("tag %s", name), err)
		}
		return nil, fmt.Errorf("failed to insert tag %s: %w", name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get tag ID: %w", err)
	}
	return &Tag{ID: id, Name: name, Type: typ}, nil
}

// GetTag returns the tag with exactly this name, ignoring surrounding space
func (s *Store) GetTag(name string) (*Tag, error) {
	name = tagKey(name)
	t := &Tag{}
	var typ string
	err := s.db.QueryRow(s.q(`
		SELECT t.uid, t.name, t.type,
		       (SELECT COUNT(*) FROM {p}tag_link tl WHERE tl.tag = t.uid)
		FROM {p}tag t WHERE t.name = ?
	`), name).Scan(&t.ID, &t.Name, &typ, &t.Links)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tag %s: %w", name, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	t.Type = TagType(typ)
	return t, nil
}

// ListTags returns all tags ordered by name, optionally limited to one type
func (s *Store) ListTags(typ TagType) ([]*Tag, error) {
	query := s.q(`
		SELECT t.uid, t.name, t.type,
		       (SELECT COUNT(*) FROM {p}tag_link tl WHERE tl.tag = t.uid)
		FROM {p}tag t
		WHERE ? = '' OR t.type = ?
		ORDER BY t.name
	`)
	rows, err := s.db.Query(query, string(typ), string(typ))
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []*Tag
	for rows.Next() {
		t := &Tag{}
		var tt string
		if err := rows.Scan(&t.ID, &t.Name, &tt, &t.Links); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		t.Type = TagType(tt)
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// LinkTag attaches an existing tag to an existing log.
//
// The log name is matched exactly, falling back to a case-insensitive
// match, and the stored spelling is linked. A missing tag is ErrTagNotFound, a missing log is
// ErrLogNotFound. The bool is false when the pair was already linked.
func (s *Store) LinkTag(logName, tagName string) (bool, error) {
	tag, err := s.GetTag(tagName)
	if errors.Is(err, util.ErrNotFound) {
		util.WarnLog("DB: could not locate tag with name '%s'", tagName)
		return false, fmt.Errorf("%s: %w", tagName, ErrTagNotFound)
	}
	if err != nil {
		return false, err
	}

	canonical, ok, err := s.logName(logName)
	if err != nil {
		return false, err
	}
	if !ok {
		util.WarnLog("DB: could not locate log with name '%s'", logName)
		return false, fmt.Errorf("%s: %w", logName, ErrLogNotFound)
	}

	result, err := s.db.Exec(s.q(`
		INSERT INTO {p}tag_link (log, tag, changed) VALUES (?, ?, ?)
		ON CONFLICT(log, tag) DO NOTHING
	`), canonical, tag.ID, s.stamp())
	if err != nil {
		return false, fmt.Errorf("failed to link %s to %s: %w", tagName, canonical, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to link %s to %s: %w", tagName, canonical, err)
	}
	if n == 0 {
		util.DebugLog("DB: %s already tagged %s", canonical, tagName)
		return false, nil
	}
	return true, nil
}

// TagLink is one log/tag association
type TagLink struct {
	Log     string
	Tag     string
	Type    TagType
	Changed time.Time
}

// TagsForLog lists the links of a log, oldest first.
// The name resolves the same way as in LinkTag.
func (s *Store) TagsForLog(logName string) ([]*TagLink, error) {
	canonical, ok, err := s.logName(logName)
	if err != nil || !ok {
		return nil, err
	}

	rows, err := s.db.Query(s.q(`
		SELECT tl.log, t.name, t.type, tl.changed
		FROM {p}tag_link tl
		JOIN {p}tag t ON t.uid = tl.tag
		WHERE tl.log = ?
		ORDER BY tl.uid
	`), canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag links: %w", err)
	}
	defer rows.Close()

	var links []*TagLink
	for rows.Next() {
		l := &TagLink{}
		var typ string
		if err := rows.Scan(&l.Log, &l.Tag, &typ, &l.Changed); err != nil {
			return nil, fmt.Errorf("failed to scan tag link: %w", err)
		}
		l.Type = TagType(typ)
		links = append(links, l)
	}
	return links, rows.Err()
}
