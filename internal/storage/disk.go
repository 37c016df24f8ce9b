package storage

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// sqliteCompanions are the files SQLite keeps next to a database in WAL mode.
var sqliteCompanions = []string{"-wal", "-shm", "-journal"}

// Footprint reports how many bytes the knowledge base occupies on disk: the SQLite
// database with its companion files plus any index files or directories in extra.
// Paths that do not exist count as zero.
func Footprint(dbPath string, extra ...string) (int64, error) {
	paths := make([]string, 0, len(extra)+1+len(sqliteCompanions))
	if dbPath != "" && dbPath != ":memory:" {
		paths = append(paths, dbPath)
		for _, suffix := range sqliteCompanions {
			paths = append(paths, dbPath+suffix)
		}
	}
	paths = append(paths, extra...)

	var total int64
	for _, p := range paths {
		n, err := treeSize(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func treeSize(root string) (int64, error) {
	if root == "" {
		return 0, nil
	}
	var n int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		n += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return n, err
}
