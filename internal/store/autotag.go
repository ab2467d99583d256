package store

import (
	"fmt"

	"github.com/burnoutdv/santonian-archive/internal/dates"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

// AutoTagDates tags every log that has no date tag yet with the first date
// found in its newest text revision. It returns log name -> date tag for the
// logs tagged in this run. Logs without a recognisable date are left alone
// and will be looked at again next time.
func (s *Store) AutoTagDates() (map[string]string, error) {
	rows, err := s.db.Query(s.q(`
		SELECT l.name, l.content FROM {p}log l
		WHERE l.audio = 0
		  AND l.revision = (SELECT MAX(r.revision) FROM {p}log r WHERE r.name = l.name)
		  AND NOT EXISTS (
		      SELECT 1 FROM {p}tag_link tl JOIN {p}tag t ON t.uid = tl.tag
		      WHERE tl.log = l.name AND t.type = 'date')
		ORDER BY l.uid
	`))
	if err != nil {
		return nil, fmt.Errorf("failed to query untagged logs: %w", err)
	}

	type candidate struct{ name, content string }
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.name, &c.content); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	changes := make(map[string]string)
	for _, c := range candidates {
		d, ok := dates.Find(c.content)
		if !ok {
			continue
		}
		tag := d.String()
		if _, err := s.CreateOrUpdateTag(tag, string(TagDate)); err != nil {
			util.WarnLog("DB: could not create date tag %s for %s: %v", tag, c.name, err)
			continue
		}
		linked, err := s.LinkTag(c.name, tag)
		if err != nil {
			util.WarnLog("DB: could not tag %s with %s: %v", c.name, tag, err)
			continue
		}
		if linked {
			changes[c.name] = tag
		}
	}

	if len(changes) > 0 {
		util.InfoLog("DB: created %d date tag links", len(changes))
	}
	return changes, nil
}
