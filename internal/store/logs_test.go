package store

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/burnoutdv/santonian-archive/internal/util"
)

func TestIngestIdempotent(t *testing.T) {
	store, clock := newTestStore(t)

	first, err := store.IngestText("CALLX.LOG", "Subject reports nominal.", ByName("ARCHIVE001"))
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	if first.Outcome != IngestInserted || first.Revision != 0 {
		t.Fatalf("expected inserted revision 0, got %+v", first)
	}
	before, err := store.GetRevision("CALLX.LOG", -1)
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(24 * time.Hour)

	second, err := store.IngestText("CALLX.LOG", "Subject reports nominal.", ByName("ARCHIVE001"))
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if second.Outcome != IngestUnchanged || second.LogID != first.LogID {
		t.Errorf("expected unchanged same row, got %+v", second)
	}

	revs, err := store.Revisions("CALLX.LOG")
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 1 || revs[0] != 0 {
		t.Errorf("expected exactly revision [0], got %v", revs)
	}

	after, err := store.GetRevision("CALLX.LOG", -1)
	if err != nil {
		t.Fatal(err)
	}
	if !after.LastCheck.After(before.LastCheck) {
		t.Errorf("last_check should advance: %v -> %v", before.LastCheck, after.LastCheck)
	}
	if !after.FirstEntry.Equal(before.FirstEntry) {
		t.Errorf("first_entry should stay: %v -> %v", before.FirstEntry, after.FirstEntry)
	}
	if after.Hash != util.Fingerprint("Subject reports nominal.") {
		t.Errorf("unexpected hash %s", after.Hash)
	}
}

func TestIngestAppendsRevision(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.IngestText("CALLX.LOG", "v0", ByName("ARCHIVE001")); err != nil {
		t.Fatal(err)
	}
	res, err := store.IngestText("CALLX.LOG", "v1", ByName("ARCHIVE001"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != IngestRevised || res.Revision != 1 {
		t.Fatalf("expected revised revision 1, got %+v", res)
	}

	// returning to old content is still a change relative to the newest revision
	res, err = store.IngestText("CALLX.LOG", "v0", ByName("ARCHIVE001"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Revision != 2 {
		t.Errorf("expected revision 2, got %d", res.Revision)
	}

	logs, err := store.Get("callx")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 revisions, got %d", len(logs))
	}
	for i, want := range []int{2, 1, 0} {
		if logs[i].Revision != want {
			t.Errorf("position %d: expected revision %d, got %d", i, want, logs[i].Revision)
		}
	}
	if logs[0].Content != "v0" || logs[1].Content != "v1" {
		t.Errorf("unexpected contents %q, %q", logs[0].Content, logs[1].Content)
	}
	if logs[0].FolderName != "ARCHIVE001" {
		t.Errorf("expected folder name joined, got %q", logs[0].FolderName)
	}

	old, err := store.GetRevision("CALLX.LOG", 1)
	if err != nil {
		t.Fatal(err)
	}
	if old.Content != "v1" {
		t.Errorf("revision 1 content = %q", old.Content)
	}

	if n, _ := store.Count(); n != 1 {
		t.Errorf("expected 1 distinct log name, got %d", n)
	}
}

func TestIngestFolderResolution(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.IngestText("ORPHAN.LOG", "text", ByExternalID(777))
	if !errors.Is(err, util.ErrFolderResolution) {
		t.Fatalf("expected ErrFolderResolution, got %v", err)
	}
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("cause should stay visible, got %v", err)
	}
	if _, err := store.Get("ORPHAN"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("failed ingest must not store a row, got %v", err)
	}

	// an unseen folder name becomes a placeholder
	if _, err := store.IngestText("FOUND.LOG", "text", ByName("NEWFOLDER")); err != nil {
		t.Fatal(err)
	}
	f, _ := store.GetFolder(ByName("NEWFOLDER"))
	if f == nil || !f.Placeholder || f.ExternalID != FirstPlaceholderID {
		t.Errorf("expected placeholder folder, got %+v", f)
	}
}

func TestIngestAudio(t *testing.T) {
	store, _ := newTestStore(t)
	clip := []byte("ID3\x03\x00fake mp3 body")

	res, err := store.IngestAudio("VOICE1.MP3", clip, ByName("ARCHIVE001"))
	if err != nil {
		t.Fatalf("IngestAudio failed: %v", err)
	}
	if res.Hash != util.FingerprintBytes(clip) {
		t.Errorf("audio hash should cover the clip bytes")
	}

	r, err := store.GetRevision("VOICE1.MP3", -1)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Audio || r.Content != "" {
		t.Errorf("expected audio row with empty content, got audio=%v content=%q", r.Audio, r.Content)
	}
	if !bytes.Equal(r.AudioData, clip) {
		t.Errorf("audio payload not preserved")
	}

	again, err := store.IngestAudio("VOICE1.MP3", clip, ByName("ARCHIVE001"))
	if err != nil || again.Outcome != IngestUnchanged {
		t.Errorf("identical clip should be unchanged: %+v, %v", again, err)
	}
}

func TestIngestRejectsEmptyName(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.IngestText("  ", "x", ByName("F")); err == nil {
		t.Error("expected error for empty log name")
	}
}

func TestGetNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Get("nothing"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetRevision("nothing.LOG", 0); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListByFolder(t *testing.T) {
	store, _ := newTestStore(t)

	ingest := func(name, folder string) {
		t.Helper()
		if _, err := store.IngestText(name, name+" body", ByName(folder)); err != nil {
			t.Fatal(err)
		}
	}
	ingest("A1.LOG", "ALPHA")
	ingest("A2.LOG", "ALPHA")
	ingest("B1.LOG", "BRAVO")
	// a revision must not list the name twice
	if _, err := store.IngestText("A1.LOG", "changed", ByName("ALPHA")); err != nil {
		t.Fatal(err)
	}

	names, err := store.ListByFolder("alpha", 0, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "A1.LOG" || names[1] != "A2.LOG" {
		t.Errorf("unexpected ALPHA listing %v", names)
	}

	all, err := store.ListByFolder("*", 0, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("wildcard should list every log, got %v", all)
	}

	page, err := store.ListByFolder("*", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0] != "B1.LOG" {
		t.Errorf("second page of 2 = %v", page)
	}

	none, err := store.ListByFolder("UNKNOWN", 0, 20)
	if err != nil || len(none) != 0 {
		t.Errorf("unknown folder should list nothing, got %v, %v", none, err)
	}
}

func TestListLogs(t *testing.T) {
	store, _ := newTestStore(t)

	for _, name := range []string{"B.LOG", "C.LOG", "A.LOG"} {
		if _, err := store.IngestText(name, "body of "+name, ByName("ARCHIVE001")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.CreateOrUpdateTag("crew", "entity"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.LinkTag("A.LOG", "crew"); err != nil {
		t.Fatal(err)
	}

	logs, err := store.ListLogs(ListOptions{OrderField: "name"})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 3 || logs[0].Name != "A.LOG" || logs[2].Name != "C.LOG" {
		t.Errorf("unexpected name order %v", logNames(logs))
	}
	if logs[0].Tags != nil {
		t.Errorf("tags should be omitted unless requested, got %v", logs[0].Tags)
	}

	logs, err = store.ListLogs(ListOptions{OrderField: "bogus", Descending: true, IncludeTags: true})
	if err != nil {
		t.Fatal(err)
	}
	if logs[0].Name != "A.LOG" || len(logs[0].Tags) != 1 || logs[0].Tags[0] != "crew" {
		t.Errorf("uid DESC with tags: got %v / %v", logNames(logs), logs[0].Tags)
	}

	logs, err = store.ListLogs(ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Name != "C.LOG" {
		t.Errorf("page 2 of 1 = %v", logNames(logs))
	}
}

func TestListLogsByDateTag(t *testing.T) {
	store, _ := newTestStore(t)

	for name, body := range map[string]string{
		"DATED.LOG":   "May 2049",
		"NAMED.LOG":   "no date",
		"BARE.LOG":    "no date either",
		"EARLIER.LOG": "9/25/43",
	} {
		if _, err := store.IngestText(name, body, ByName("ARCHIVE001")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.CreateOrUpdateTag("biocom", "name"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.LinkTag("NAMED.LOG", "biocom"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AutoTagDates(); err != nil {
		t.Fatal(err)
	}

	logs, err := store.ListLogs(ListOptions{OrderField: OrderByDateTag})
	if err != nil {
		t.Fatal(err)
	}
	got := logNames(logs)
	want := []string{"BARE.LOG", "EARLIER.LOG", "DATED.LOG"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if len(logs[1].Tags) != 1 || logs[1].Tags[0] != "2043-09-25" {
		t.Errorf("tag_date order should aggregate tags, got %v", logs[1].Tags)
	}
}

func TestResolveExtensionBlind(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.IngestText("CALLX.LOG", "x", ByName("F")); err != nil {
		t.Fatal(err)
	}

	name, err := store.ResolveExtensionBlind("CALLX")
	if err != nil || name != "CALLX.LOG" {
		t.Errorf("ResolveExtensionBlind(CALLX) = %q, %v", name, err)
	}
	if _, err := store.ResolveExtensionBlind("CALL"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("a shorter base must not match, got %v", err)
	}
}

func logNames(logs []*LogRecord) []string {
	names := make([]string, len(logs))
	for i, l := range logs {
		names[i] = l.Name
	}
	return names
}

func TestPatternsMatchWildcardsLiterally(t *testing.T) {
	store, _ := newTestStore(t)

	for _, l := range []struct{ name, folder string }{
		{"CALLX.LOG", "ARCHIVE001"},
		{"MEMO.LOG", "ARCHIVE001"},
		{"RATE_100%.LOG", "ARCH_B"},
	} {
		if _, err := store.IngestText(l.name, "body", ByName(l.folder)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		pattern string
		want    int
	}{
		{"_", 1},
		{"%", 1},
		{`\`, 0},
		{"0%.", 1},
		{"L.LOG", 0},
	}
	for _, tt := range tests {
		logs, err := store.Get(tt.pattern)
		if tt.want == 0 {
			if !errors.Is(err, util.ErrNotFound) {
				t.Errorf("Get(%q) = %v, %v; expected no match", tt.pattern, logNames(logs), err)
			}
			continue
		}
		if err != nil || len(logs) != tt.want {
			t.Errorf("Get(%q) = %v, %v; expected %d", tt.pattern, logNames(logs), err, tt.want)
		}
	}

	if _, err := store.ResolveExtensionBlind("CALL_"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("_ in a base name must not act as a wildcard, got %v", err)
	}
	if name, err := store.ResolveExtensionBlind("RATE_100%"); err != nil || name != "RATE_100%.LOG" {
		t.Errorf("ResolveExtensionBlind(RATE_100%%) = %q, %v", name, err)
	}

	if names, err := store.ListByFolder("ARCH_%", 0, 10); err != nil || len(names) != 0 {
		t.Errorf("ListByFolder(ARCH_%%) = %v, %v; expected no folder match", names, err)
	}
	if names, err := store.ListByFolder("arch_b", 0, 10); err != nil || len(names) != 1 {
		t.Errorf("ListByFolder(arch_b) = %v, %v", names, err)
	}
}
