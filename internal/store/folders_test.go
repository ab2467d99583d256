package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/burnoutdv/santonian-archive/internal/util"
)

func TestResolveFolderAllocatesPlaceholders(t *testing.T) {
	store, _ := newTestStore(t)

	names := []string{"ARCHIVE_A", "ARCHIVE_B", "ARCHIVE_C"}
	for i, name := range names {
		if _, err := store.ResolveFolder(ByName(name)); err != nil {
			t.Fatalf("ResolveFolder(%s) failed: %v", name, err)
		}

		f, err := store.GetFolder(ByName(name))
		if err != nil || f == nil {
			t.Fatalf("GetFolder(%s) = %v, %v", name, f, err)
		}
		want := int64(FirstPlaceholderID + i)
		if f.ExternalID != want {
			t.Errorf("%s: expected external id %d, got %d", name, want, f.ExternalID)
		}
		if !f.Placeholder {
			t.Errorf("%s: expected placeholder flag", name)
		}
	}
}

func TestResolveFolderIsStable(t *testing.T) {
	store, _ := newTestStore(t)

	first, err := store.ResolveFolder(ByName("Archive001"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.ResolveFolder(ByName("ARCHIVE001"))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("case-insensitive name should resolve to the same key: %d vs %d", first, second)
	}

	count, _ := store.CountFolders()
	if count != 1 {
		t.Errorf("expected 1 folder, got %d", count)
	}
}

func TestResolveFolderPlaceholderAboveRealIDs(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.RegisterFolder("REAL", 42); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ResolveFolder(ByName("UNSEEN")); err != nil {
		t.Fatal(err)
	}

	id, ok, err := store.ExternalIDByName("unseen")
	if err != nil || !ok {
		t.Fatalf("ExternalIDByName failed: ok=%v err=%v", ok, err)
	}
	if id != FirstPlaceholderID {
		t.Errorf("expected placeholder %d above real ids, got %d", FirstPlaceholderID, id)
	}
}

func TestNextPlaceholderID(t *testing.T) {
	tests := []struct {
		name string
		max  sql.NullInt64
		want int64
	}{
		{"empty store", sql.NullInt64{}, FirstPlaceholderID},
		{"only real ids", sql.NullInt64{Int64: 9999, Valid: true}, FirstPlaceholderID},
		{"boundary", sql.NullInt64{Int64: PlaceholderFloor - 1, Valid: true}, FirstPlaceholderID},
		{"placeholders present", sql.NullInt64{Int64: 100004, Valid: true}, 100005},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextPlaceholderID(tt.max); got != tt.want {
				t.Errorf("nextPlaceholderID(%v) = %d, want %d", tt.max, got, tt.want)
			}
		})
	}
}

func TestResolveFolderByExternalID(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.ResolveFolder(ByExternalID(999))
	if !errors.Is(err, util.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
	if count, _ := store.CountFolders(); count != 0 {
		t.Errorf("a bare external id must not create a folder, have %d", count)
	}

	if _, err := store.RegisterFolder("ARCHIVE009", 9); err != nil {
		t.Fatal(err)
	}
	byID, err := store.ResolveFolder(ByExternalID(9))
	if err != nil {
		t.Fatal(err)
	}
	byName, err := store.ResolveFolder(ByName("ARCHIVE009"))
	if err != nil {
		t.Fatal(err)
	}
	if byID != byName {
		t.Errorf("id and name should resolve to the same key: %d vs %d", byID, byName)
	}
}

func TestRegisterFolderOutcomes(t *testing.T) {
	store, clock := newTestStore(t)

	res, err := store.RegisterFolder("ARCHIVE001", 1)
	if err != nil || res.Outcome != RegisterCreated {
		t.Fatalf("first register: %v, %v", res, err)
	}
	created := res.FolderID

	before, _ := store.GetFolder(ByExternalID(1))
	clock.Advance(time.Hour)

	res, err = store.RegisterFolder("ARCHIVE001", 1)
	if err != nil || res.Outcome != RegisterKnown || res.FolderID != created {
		t.Fatalf("second register: %+v, %v", res, err)
	}

	after, _ := store.GetFolder(ByExternalID(1))
	if !after.LastCheck.After(before.LastCheck) {
		t.Errorf("expected last_check to advance: %v -> %v", before.LastCheck, after.LastCheck)
	}
	if !after.FirstEntry.Equal(before.FirstEntry) {
		t.Errorf("first_entry must not change: %v -> %v", before.FirstEntry, after.FirstEntry)
	}
	if after.Placeholder {
		t.Error("registered folder is not a placeholder")
	}

	// matches by id only: still known, no new row
	res, err = store.RegisterFolder("RENAMED", 1)
	if err != nil || res.Outcome != RegisterKnown || res.FolderID != created {
		t.Fatalf("partial register: %+v, %v", res, err)
	}
	if count, _ := store.CountFolders(); count != 1 {
		t.Errorf("expected 1 folder, got %d", count)
	}
}

func TestRegisterFolderConfirmsPlaceholder(t *testing.T) {
	store, _ := newTestStore(t)

	key, err := store.ResolveFolder(ByName("ARCHIVE042"))
	if err != nil {
		t.Fatal(err)
	}

	res, err := store.RegisterFolder("archive042", 42)
	if err != nil {
		t.Fatalf("RegisterFolder failed: %v", err)
	}
	if res.Outcome != RegisterConfirmed || res.FolderID != key {
		t.Errorf("expected confirmed on key %d, got %+v", key, res)
	}

	f, err := store.GetFolder(ByExternalID(42))
	if err != nil || f == nil {
		t.Fatalf("confirmed folder not found by real id: %v", err)
	}
	if f.ID != key {
		t.Errorf("confirmation must keep the surrogate key: %d vs %d", f.ID, key)
	}
	if f.Placeholder {
		t.Error("placeholder flag should be cleared")
	}
	if f.Name != "ARCHIVE042" {
		t.Errorf("stored name should keep its spelling, got %s", f.Name)
	}
}

func TestRegisterFolderAmbiguous(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.RegisterFolder("ARCHIVE_A", 5); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RegisterFolder("ARCHIVE_B", 6); err != nil {
		t.Fatal(err)
	}

	res, err := store.RegisterFolder("ARCHIVE_A", 6)
	if res == nil || res.Outcome != RegisterAmbiguous {
		t.Errorf("expected ambiguous outcome, got %+v", res)
	}
	if !errors.Is(err, util.ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous, got %v", err)
	}

	id, _, _ := store.ExternalIDByName("ARCHIVE_A")
	if id != 5 {
		t.Errorf("ambiguous register must not write, ARCHIVE_A now has id %d", id)
	}
	if count, _ := store.CountFolders(); count != 2 {
		t.Errorf("expected 2 folders, got %d", count)
	}
}

// A name-only match keeps the stored id; logs must still land in that row
func TestRegisterFolderNameMatchWithOtherID(t *testing.T) {
	store, _ := newTestStore(t)

	first, err := store.RegisterFolder("ARCHIVE001", 8)
	if err != nil {
		t.Fatal(err)
	}
	res, err := store.RegisterFolder("archive001", 80)
	if err != nil || res.Outcome != RegisterKnown {
		t.Fatalf("expected known, got %+v, %v", res, err)
	}
	if res.FolderID != first.FolderID {
		t.Errorf("expected key %d, got %d", first.FolderID, res.FolderID)
	}

	if _, err := store.IngestText("CALLX.LOG", "text", ByExternalID(80)); !errors.Is(err, util.ErrFolderResolution) {
		t.Errorf("the remote id was never stored, expected a resolution error, got %v", err)
	}
	if _, err := store.IngestText("CALLX.LOG", "text", ByKey(res.FolderID)); err != nil {
		t.Errorf("ingest by key failed: %v", err)
	}
	rec, err := store.GetRevision("CALLX.LOG", -1)
	if err != nil || rec.FolderName != "ARCHIVE001" {
		t.Errorf("unexpected record %+v, %v", rec, err)
	}

	if _, err := store.ResolveFolder(ByKey(999)); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("unknown key should be not found, got %v", err)
	}
}

func TestFolderInsertRaces(t *testing.T) {
	tests := []struct {
		name    string
		trigger string
		run     func(*Store) error
	}{
		{
			name: "placeholder",
			trigger: `CREATE TRIGGER racer BEFORE INSERT ON folders WHEN NEW.placeholder = 1
				BEGIN
					INSERT INTO folders (name, external_id, placeholder) VALUES (lower(NEW.name), 7, 0);
				END`,
			run: func(s *Store) error {
				_, err := s.ResolveFolder(ByName("ARCHIVE_R"))
				return err
			},
		},
		{
			name: "register",
			trigger: `CREATE TRIGGER racer BEFORE INSERT ON folders WHEN NEW.placeholder = 0
				BEGIN
					INSERT INTO folders (name, external_id, placeholder) VALUES ('OTHER', NEW.external_id, 0);
				END`,
			run: func(s *Store) error {
				_, err := s.RegisterFolder("ARCHIVE_R", 12)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			if _, err := store.db.Exec(tt.trigger); err != nil {
				t.Fatal(err)
			}

			err := tt.run(store)
			if !errors.Is(err, util.ErrConstraintRace) {
				t.Errorf("expected ErrConstraintRace, got %v", err)
			}
			if errors.Is(err, util.ErrNotFound) {
				t.Error("a race must be distinct from not found")
			}
			if count, _ := store.CountFolders(); count != 0 {
				t.Errorf("the failed statement should leave no rows, got %d", count)
			}
		})
	}
}

func TestFolderLookups(t *testing.T) {
	store, _ := newTestStore(t)

	if _, ok, err := store.FolderNameByExternalID(3); ok || err != nil {
		t.Errorf("expected absent folder, ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.ExternalIDByName("nothing"); ok || err != nil {
		t.Errorf("expected absent folder, ok=%v err=%v", ok, err)
	}
	if f, err := store.GetFolder(ByName("nothing")); f != nil || err != nil {
		t.Errorf("GetFolder of unknown name = %v, %v", f, err)
	}
}

func TestListFolders(t *testing.T) {
	store, _ := newTestStore(t)

	for i, name := range []string{"CHARLIE", "ALPHA", "BRAVO"} {
		if _, err := store.RegisterFolder(name, int64(i+1)); err != nil {
			t.Fatal(err)
		}
	}

	folders, err := store.ListFolders(ListOptions{OrderField: "name"})
	if err != nil {
		t.Fatal(err)
	}
	got := []string{folders[0].Name, folders[1].Name, folders[2].Name}
	if got[0] != "ALPHA" || got[1] != "BRAVO" || got[2] != "CHARLIE" {
		t.Errorf("unexpected name order: %v", got)
	}

	// unknown field falls back to uid
	folders, err = store.ListFolders(ListOptions{OrderField: "name; DROP TABLE folders", Descending: true, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(folders) != 2 || folders[0].Name != "BRAVO" {
		t.Errorf("expected uid DESC page starting at BRAVO, got %+v", folders)
	}

	folders, err = store.ListFolders(ListOptions{Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(folders) != 1 || folders[0].Name != "BRAVO" {
		t.Errorf("expected last page [BRAVO], got %+v", folders)
	}
}

func TestFolderRef(t *testing.T) {
	if ref := ByName("X"); ref.IsExternalID() || ref.Name() != "X" || ref.String() != "X" {
		t.Errorf("unexpected name ref %+v", ref)
	}
	if ref := ByExternalID(12); !ref.IsExternalID() || ref.ExternalID() != 12 || ref.String() != "#12" {
		t.Errorf("unexpected id ref %+v", ref)
	}
}
