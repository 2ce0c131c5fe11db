// MODUL: archive
// ZWECK: Reader fuer Key/Blob-Archive in einer einzelnen SQLite-Datei
// INPUT: Pfad zur Datenbank mit Tabelle records(key TEXT PRIMARY KEY, data BLOB, label INTEGER)
// OUTPUT: Blobs in Schluesselreihenfolge, Labels pro Schluessel
// NEBENEFFEKTE: Haelt eine Datenbankverbindung offen bis Release
// ABHAENGIGKEITEN: github.com/mattn/go-sqlite3 (cgo)
// HINWEISE: Ersetzt LMDB-artige Container; Schluessel dient als Sample-ID

package reader

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// ArchiveSchema legt die erwartete Tabelle an.
const ArchiveSchema = `CREATE TABLE IF NOT EXISTS records (
	key   TEXT PRIMARY KEY,
	data  BLOB NOT NULL,
	label INTEGER NOT NULL DEFAULT -1
)`

// Archive liest Samples aus einer SQLite-Datei.
type Archive struct {
	db      *sql.DB
	keys    []string
	labels  map[string]int32
	cur     cursor
	current []byte
	offset  int
}

func (r *Archive) Init(cfg Config) error {
	db, err := sql.Open("sqlite3", "file:"+cfg.Path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("archiv oeffnen fehlgeschlagen: %w", err)
	}

	rows, err := db.Query(`SELECT key, label FROM records WHERE length(data) > 0 ORDER BY key`)
	if err != nil {
		db.Close()
		return fmt.Errorf("archiv lesen fehlgeschlagen: %w", err)
	}
	defer rows.Close()

	r.keys = r.keys[:0]
	r.labels = map[string]int32{}
	var all []entry
	for rows.Next() {
		var key string
		var label int64
		if err := rows.Scan(&key, &label); err != nil {
			db.Close()
			return err
		}
		if label >= 0 {
			r.labels[key] = int32(label)
		}
		if cfg.Filter != nil && !cfg.Filter.Exists(key) {
			continue
		}
		all = append(all, entry{id: key, ref: len(r.keys)})
		r.keys = append(r.keys, key)
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return err
	}

	if err := r.cur.init(all, cfg); err != nil {
		db.Close()
		return err
	}
	r.db = db
	slog.Debug("archive reader initialized", "path", cfg.Path, "records", len(all))
	return nil
}

func (r *Archive) Count() int { return r.cur.count() }

func (r *Archive) Open() (int, error) {
	e, err := r.cur.next()
	if err != nil {
		return 0, err
	}
	if err := r.db.QueryRow(`SELECT data FROM records WHERE key = ?`, r.keys[e.ref]).Scan(&r.current); err != nil {
		return 0, fmt.Errorf("record %q lesen fehlgeschlagen: %w", r.keys[e.ref], err)
	}
	r.offset = 0
	return len(r.current), nil
}

func (r *Archive) Read(buf []byte) (int, error) {
	n := copy(buf, r.current[r.offset:])
	r.offset += n
	return n, nil
}

func (r *Archive) Close() { r.current = nil }

func (r *Archive) Reset() error {
	r.Close()
	r.cur.reset()
	return nil
}

func (r *Archive) ID() string               { return r.cur.current.id }
func (r *Archive) CurrentIsPadding() bool   { return r.cur.current.padded }
func (r *Archive) LastBatchPaddedSize() int { return r.cur.lastPad }
func (r *Archive) Labels() map[string]int32 { return r.labels }

func (r *Archive) Release() {
	r.Close()
	if r.db != nil {
		r.db.Close()
		r.db = nil
	}
}
