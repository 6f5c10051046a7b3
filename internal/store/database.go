package store

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"runtime"

	"github.com/haatos/cijoe/internal"

	_ "modernc.org/sqlite"
)

const databaseFile = "builds.sqlite"

// OpenBuildDatabases opens the read-only and read-write handles of the
// project's build database, creating the builds directory if needed.
func OpenBuildDatabases(projectPath string) (rdb, rwdb *sql.DB, err error) {
	dir := BuildsPath(projectPath)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, nil, err
	}
	path := filepath.Join(dir, databaseFile)

	rwdb, err = InitDatabase(path, false)
	if err != nil {
		return nil, nil, err
	}
	if err := RunMigrations(rwdb, internal.MigrationsDir); err != nil {
		rwdb.Close()
		return nil, nil, err
	}
	rdb, err = InitDatabase(path, true)
	if err != nil {
		rwdb.Close()
		return nil, nil, err
	}
	return rdb, rwdb, nil
}

func InitDatabase(path string, readonly bool) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?"+sqliteParams(readonly).Encode())
	if err != nil {
		return nil, err
	}

	if readonly {
		db.SetMaxOpenConns(max(4, runtime.NumCPU()))
	} else {
		if _, err := db.Exec("PRAGMA temp_store=memory"); err != nil {
			db.Close()
			return nil, err
		}
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

func sqliteParams(readonly bool) url.Values {
	params := make(url.Values)
	params.Add("_pragma", "busy_timeout(5000)")
	if readonly {
		params.Add("mode", "ro")
	} else {
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", "synchronous(FULL)")
		params.Add("_txlock", "immediate")
		params.Add("mode", "rwc")
	}
	return params
}
