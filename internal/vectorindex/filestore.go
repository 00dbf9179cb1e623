package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/career-fit/internal/types"
)

const (
	indexMagic   = "CFIX"
	indexVersion = uint32(1)
	currentFile  = "CURRENT"
)

var (
	scopeSegmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	generationPattern   = regexp.MustCompile(`^(?:index|chunks)-(\d+)\.(?:bin|json)$`)
)

// SessionScope returns the index scope of a resume session
func SessionScope(sessionID string) string {
	return "session/" + sessionID
}

// FileStore persists scope snapshots as generation files under a root directory:
//
//	<root>/<scope>/index-<gen>.bin    vectors
//	<root>/<scope>/chunks-<gen>.json  chunk metadata
//	<root>/<scope>/CURRENT            committed generation
//
// Generation files are written completely before CURRENT is switched to them with an
// atomic rename, so a crash mid-write leaves the previous generation current.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the store's root directory
func (s *FileStore) Root() string {
	return s.root
}

type chunkFile struct {
	Scope      string        `json:"scope"`
	Generation int64         `json:"generation"`
	Dims       int           `json:"dims"`
	Count      int           `json:"count"`
	Chunks     []types.Chunk `json:"chunks"`
}

func (s *FileStore) dir(scope string) (string, error) {
	if scope == "" {
		return "", &ScopeError{Scope: scope, Message: "empty"}
	}
	parts := strings.Split(scope, "/")
	for _, p := range parts {
		if !scopeSegmentPattern.MatchString(p) {
			return "", &ScopeError{Scope: scope, Message: "segments must be alphanumeric with . _ -"}
		}
	}
	return filepath.Join(append([]string{s.root}, parts...)...), nil
}

// WriteGeneration writes a snapshot's vector and metadata files without making them current.
func (s *FileStore) WriteGeneration(snap *Snapshot) error {
	dir, err := s.dir(snap.scope)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create scope directory: %w", err)
	}

	indexPath := filepath.Join(dir, fmt.Sprintf("index-%d.bin", snap.generation))
	if err := writeFileAtomic(indexPath, func(w io.Writer) error {
		return encodeVectors(w, snap)
	}); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}

	meta := chunkFile{
		Scope:      snap.scope,
		Generation: snap.generation,
		Dims:       snap.dims,
		Count:      len(snap.chunks),
		Chunks:     snap.chunks,
	}
	chunksPath := filepath.Join(dir, fmt.Sprintf("chunks-%d.json", snap.generation))
	if err := writeFileAtomic(chunksPath, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(meta)
	}); err != nil {
		return fmt.Errorf("failed to write chunk metadata: %w", err)
	}
	return nil
}

// SetCurrent atomically points the scope at generation gen.
func (s *FileStore) SetCurrent(scope string, gen int64) error {
	dir, err := s.dir(scope)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, currentFile), func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%d\n", gen)
		return err
	})
}

// Current returns the committed generation of scope. ok is false if the scope was never committed.
func (s *FileStore) Current(scope string) (gen int64, ok bool, err error) {
	dir, err := s.dir(scope)
	if err != nil {
		return 0, false, err
	}
	data, err := os.ReadFile(filepath.Join(dir, currentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read CURRENT for %s: %w", scope, err)
	}
	gen, err = strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false, &IndexConsistencyError{Scope: scope, Message: "malformed CURRENT file", Cause: err}
	}
	return gen, true, nil
}

// ReadGeneration loads one generation of a scope.
func (s *FileStore) ReadGeneration(scope string, gen int64) (*Snapshot, error) {
	dir, err := s.dir(scope)
	if err != nil {
		return nil, err
	}

	metaBytes, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("chunks-%d.json", gen)))
	if err != nil {
		return nil, &IndexConsistencyError{Scope: scope, Generation: gen, Message: "chunk metadata missing", Cause: err}
	}
	var meta chunkFile
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, &IndexConsistencyError{Scope: scope, Generation: gen, Message: "chunk metadata unreadable", Cause: err}
	}
	if meta.Count != len(meta.Chunks) || meta.Scope != scope || meta.Generation != gen {
		return nil, &IndexConsistencyError{Scope: scope, Generation: gen, Message: "chunk metadata header mismatch"}
	}

	f, err := os.Open(filepath.Join(dir, fmt.Sprintf("index-%d.bin", gen)))
	if err != nil {
		return nil, &IndexConsistencyError{Scope: scope, Generation: gen, Message: "index file missing", Cause: err}
	}
	defer f.Close()

	dims, vectors, err := decodeVectors(bufio.NewReader(f))
	if err != nil {
		return nil, &IndexConsistencyError{Scope: scope, Generation: gen, Message: "index file unreadable", Cause: err}
	}
	if len(vectors) != len(meta.Chunks) || (len(vectors) > 0 && dims != meta.Dims) {
		return nil, &IndexConsistencyError{
			Scope:      scope,
			Generation: gen,
			Message:    fmt.Sprintf("index has %d vectors of dim %d, metadata has %d chunks of dim %d", len(vectors), dims, len(meta.Chunks), meta.Dims),
		}
	}

	for i := range meta.Chunks {
		meta.Chunks[i].Embedding = vectors[i]
	}
	snap, err := NewSnapshot(scope, gen, meta.Chunks)
	if err != nil {
		return nil, &IndexConsistencyError{Scope: scope, Generation: gen, Message: "invalid chunk data", Cause: err}
	}
	return snap, nil
}

// Prune removes every generation of scope except keep.
func (s *FileStore) Prune(scope string, keep int64) error {
	dir, err := s.dir(scope)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var errs []error
	for _, e := range entries {
		m := generationPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		gen, _ := strconv.ParseInt(m[1], 10, 64)
		if gen == keep {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Remove deletes all files of scope.
func (s *FileStore) Remove(scope string) error {
	dir, err := s.dir(scope)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func encodeVectors(w io.Writer, snap *Snapshot) error {
	bw := bufio.NewWriter(w)
	header := []uint32{indexVersion, uint32(snap.dims), uint32(len(snap.chunks))}
	if _, err := bw.WriteString(indexMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}
	for _, c := range snap.chunks {
		if err := binary.Write(bw, binary.LittleEndian, c.Embedding); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func decodeVectors(r io.Reader) (int, [][]float32, error) {
	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return 0, nil, err
	}
	if string(magic) != indexMagic {
		return 0, nil, fmt.Errorf("bad magic %q", magic)
	}

	header := make([]uint32, 3)
	if err := binary.Read(r, binary.LittleEndian, header); err != nil {
		return 0, nil, err
	}
	if header[0] != indexVersion {
		return 0, nil, fmt.Errorf("unsupported index version %d", header[0])
	}
	dims, count := int(header[1]), int(header[2])

	vectors := make([][]float32, count)
	for i := range vectors {
		v := make([]float32, dims)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return 0, nil, fmt.Errorf("vector %d: %w", i, err)
		}
		vectors[i] = v
	}

	if _, err := r.Read(make([]byte, 1)); err != io.EOF {
		return 0, nil, fmt.Errorf("trailing data after %d vectors", count)
	}
	return dims, vectors, nil
}

// writeFileAtomic writes to a temp file in the target directory, syncs it and renames it into place.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := write(tmp); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems do not support fsync on directories
	_ = d.Sync()
	return nil
}
