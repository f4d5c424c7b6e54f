package testutil

import (
	"testing"
)

func TestStubSelectFiltersOnPredicate(t *testing.T) {
	db, conn := NewStubDB()
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(`INSERT INTO records(record_key, kind) VALUES($1,$2)`, "person/a", "person"); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO records(record_key, kind) VALUES($1,$2)`, "note/b", "note"); err != nil {
		t.Fatalf("insert b: %v", err)
	}
	rows, err := db.Query(`SELECT record_key FROM records WHERE kind = $1 ORDER BY record_key`, "note")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			t.Fatalf("scan: %v", err)
		}
		keys = append(keys, k)
	}
	if len(keys) != 1 || keys[0] != "note/b" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if len(conn.Execs) != 2 {
		t.Fatalf("expected 2 recorded execs, got %d", len(conn.Execs))
	}
}

func TestStubUpsertAndDelete(t *testing.T) {
	db, conn := NewStubDB()
	defer func() { _ = db.Close() }()
	for _, id := range []string{"I0000", "I0001"} {
		if _, err := db.Exec(`INSERT INTO records(record_key, gramps_id) VALUES($1,$2) ON CONFLICT(record_key) DO UPDATE SET gramps_id=EXCLUDED.gramps_id`, "person/a", id); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if len(conn.Rows) != 1 || conn.Rows["person/a"]["gramps_id"] != "I0001" {
		t.Fatalf("rows after upsert = %v", conn.Rows)
	}
	if _, err := db.Exec(`DELETE FROM records WHERE record_key = $1`, "person/a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(conn.Rows) != 0 {
		t.Fatalf("rows after delete = %v", conn.Rows)
	}
}

func TestBetween(t *testing.T) {
	if got := between("select a, b from t where c = $1", " where ", "="); got != "c " {
		t.Fatalf("between = %q", got)
	}
	if got := between("no markers", "(", ")"); got != "" {
		t.Fatalf("between = %q", got)
	}
}
