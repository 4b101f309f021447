package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// BackupTimeFormat is the timestamp appended to backup file names.
const BackupTimeFormat = "2006-01-02_15-04-05"

// maxBackupSuffix bounds the collision suffixes tried for one timestamp.
const maxBackupSuffix = 99

// Backup is a verified byte-exact copy of the store.
type Backup struct {
	Path      string `json:"path"`
	Manifest  string `json:"manifest"`
	Size      int64  `json:"size"`
	SHA256    string `json:"sha256"`
	SessionID string `json:"session_id"`
}

// Manifest is written next to each backup as <backup>.json.
type Manifest struct {
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	Store      string    `json:"store"`
	Backup     string    `json:"backup"`
	Size       int64     `json:"size"`
	SHA256     string    `json:"sha256"`
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	Mode       Mode      `json:"mode"`
	Catalog    string    `json:"catalog"`
	AppVersion string    `json:"app_version,omitempty"`
}

// createBackupFile creates the first free name of the form
// <dir>/<base>.<timestamp>[.N]. Existing files are never opened.
func createBackupFile(dir, base string, now time.Time) (*os.File, error) {
	name := filepath.Join(dir, base+"."+now.Format(BackupTimeFormat))
	for i := 0; i <= maxBackupSuffix; i++ {
		path := name
		if i > 0 {
			path = fmt.Sprintf("%s.%d", name, i)
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no free backup name for %s after %d attempts", name, maxBackupSuffix)
}

// writeBackup copies the store through snapshot into a new backup file and
// verifies the copy by size and checksum against the store on disk.
func writeBackup(snapshot func(io.Writer) (int64, error), storePath, dir string, now time.Time) (*Backup, error) {
	if dir == "" {
		dir = filepath.Dir(storePath)
	}
	f, err := createBackupFile(dir, filepath.Base(storePath), now)
	if err != nil {
		return nil, err
	}
	path := f.Name()

	h := sha256.New()
	n, err := snapshot(io.MultiWriter(f, h))
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	sum := hex.EncodeToString(h.Sum(nil))

	if err := verifyCopy(path, storePath, n, sum); err != nil {
		os.Remove(path)
		return nil, err
	}
	return &Backup{Path: path, Size: n, SHA256: sum}, nil
}

// verifyCopy re-reads the backup and checks it against the snapshot's
// size and checksum and the store file's current size.
func verifyCopy(path, storePath string, size int64, sum string) error {
	info, err := os.Stat(storePath)
	if err != nil {
		return err
	}
	if info.Size() != size {
		return fmt.Errorf("store is %d bytes, snapshot copied %d", info.Size(), size)
	}

	b, err := os.Open(path)
	if err != nil {
		return err
	}
	defer b.Close()
	h := sha256.New()
	got, err := io.Copy(h, b)
	if err != nil {
		return err
	}
	if got != size {
		return fmt.Errorf("backup is %d bytes, want %d", got, size)
	}
	if s := hex.EncodeToString(h.Sum(nil)); s != sum {
		return fmt.Errorf("backup checksum %s, want %s", s, sum)
	}
	return nil
}

// writeManifest stores m as <backup>.json, never replacing a file.
func writeManifest(m Manifest) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	path := m.Backup + ".json"
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
