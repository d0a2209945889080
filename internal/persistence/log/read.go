package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ReadJSONL decodes every line of the hourly <prefix>-*.jsonl.zst files under
// dir in file-name (chronological) order, calling fn per line. A missing dir
// reads as empty.
func ReadJSONL(dir, prefix string, fn func(line []byte) error) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := readOne(filepath.Join(dir, name), fn); err != nil {
			return err
		}
	}
	return nil
}

func readOne(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return sc.Err()
}

// ReadAudit returns admin entries at or after since, oldest first.
func ReadAudit(dataDir string, since time.Time) ([]AdminEntry, error) {
	var out []AdminEntry
	err := ReadJSONL(filepath.Join(dataDir, "audit"), "audit", func(line []byte) error {
		var e AdminEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if !since.IsZero() && e.At.Before(since) {
			return nil
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// ReadWins returns every logged win, oldest first.
func ReadWins(dataDir string) ([]WinEntry, error) {
	var out []WinEntry
	err := ReadJSONL(filepath.Join(dataDir, "wins"), "wins", func(line []byte) error {
		var e WinEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		out = append(out, e)
		return nil
	})
	return out, err
}
