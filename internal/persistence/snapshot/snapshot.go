package snapshot

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"bingoboard.ai/internal/bingo/progress"
)

// Header is written as a plain JSON line ahead of the gob body so a snapshot
// can be identified without decoding the whole file.
type Header struct {
	Version int       `json:"version"`
	Players int       `json:"players"`
	SavedAt time.Time `json:"saved_at"`
}

type File struct {
	Header Header
	State  progress.Snapshot
}

// Write stores snap at path as zstd(JSON header line + gob body). The file is
// written beside path and renamed into place.
func Write(path string, snap progress.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, File{
		Header: Header{Version: snap.Version, Players: len(snap.Players), SavedAt: time.Now().UTC()},
		State:  snap,
	}); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, file File) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := encode(bufio.NewWriterSize(enc, 64*1024), file); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func encode(bw *bufio.Writer, file File) error {
	hb, _ := json.Marshal(file.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&file); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return bw.Flush()
}

func Read(path string) (File, error) {
	var file File
	f, err := os.Open(path)
	if err != nil {
		return file, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return file, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return file, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&file); err != nil {
		return file, fmt.Errorf("gob decode: %w", err)
	}
	return file, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// FileStore keeps the state snapshot in a single file.
type FileStore struct {
	Path string
}

func (s FileStore) SaveState(ctx context.Context, snap progress.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return Write(s.Path, snap)
}

// LoadState returns found=false when no snapshot has been written yet.
func (s FileStore) LoadState(ctx context.Context) (progress.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return progress.Snapshot{}, false, err
	}
	file, err := Read(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return progress.Snapshot{}, false, nil
		}
		return progress.Snapshot{}, false, err
	}
	return file.State, true, nil
}

func (s FileStore) Close() error { return nil }
