package region

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// LevelFile is the metadata file kept next to the region files.
const LevelFile = "level.toml"

// FormatVersion is the region file format written by this package.
const FormatVersion = 1

// Level describes a save directory.
type Level struct {
	WorldID   uuid.UUID `toml:"world_id"`
	Seed      int64     `toml:"seed"`
	Format    int       `toml:"format"`
	CreatedAt time.Time `toml:"created_at"`
}

// ReadLevel decodes dir/level.toml. Unknown keys are an error.
func ReadLevel(dir string) (Level, error) {
	var l Level
	meta, err := toml.DecodeFile(filepath.Join(dir, LevelFile), &l)
	if err != nil {
		return Level{}, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Level{}, fmt.Errorf("%s: unknown keys %v", LevelFile, undecoded)
	}
	return l, nil
}

// WriteLevel writes l to dir/level.toml.
func WriteLevel(dir string, l Level) error {
	path := filepath.Join(dir, LevelFile)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(l); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// OpenLevel reads the level metadata of dir, creating it with a fresh world
// id when absent. created reports whether a new level was written.
func OpenLevel(dir string, seed int64) (l Level, created bool, err error) {
	l, err = ReadLevel(dir)
	if err == nil {
		if l.Format > FormatVersion {
			return Level{}, false, fmt.Errorf("%s: format %d is newer than %d", LevelFile, l.Format, FormatVersion)
		}
		return l, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Level{}, false, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Level{}, false, err
	}
	l = Level{
		WorldID:   uuid.New(),
		Seed:      seed,
		Format:    FormatVersion,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := WriteLevel(dir, l); err != nil {
		return Level{}, false, err
	}
	return l, true, nil
}
