// Package vectorstore implements the on-disk binary vector table described
// by spec.md §4.2: a single component shared by the ingestion writer and
// the query reader, brute-force cosine search over an in-memory slice, and
// model/dimension binding enforced at insert time. It is grounded on the
// teacher's internal/store/hnsw.go for its RWMutex discipline and its
// atomic write-tmp-then-rename Save, with the HNSW graph itself replaced by
// a flat slice scan (approximate-nearest-neighbor indexing is an explicit
// non-goal here).
package vectorstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nhlutterodt/localrag/internal/apperr"
	"github.com/nhlutterodt/localrag/internal/vectormath"
)

// legacyModelLenMin/Max bound what a genuine modelNameByteLen may be. A
// value outside this range means the four bytes just read are actually the
// start of the vector payload of a pre-model-header file.
const (
	legacyModelLenMin = 1
	legacyModelLenMax = 256
)

// Store is the in-memory, mutex-guarded vector table for one collection.
type Store struct {
	mu sync.RWMutex

	dir  string
	name string

	dims     int
	hasModel bool
	model    string
	corrupt  bool

	items []Record
}

// New returns an empty, unloaded store for collection name rooted at dir
// (dir is the collection's own subdirectory, e.g. dataDir/<collection>).
func New(dir, name string) *Store {
	return &Store{dir: dir, name: name}
}

func (s *Store) vectorsPath() string {
	return filepath.Join(s.dir, s.name+".vectors.bin")
}

func (s *Store) metadataPath() string {
	return filepath.Join(s.dir, s.name+".metadata.json")
}

// Load reads both files from disk. expectedModel, if non-empty, must match
// the model recorded in the store unless the store itself has no model
// (i.e. it's empty or a legacy file), in which case it's accepted; a legacy
// file holding records also returns a warning for the caller to log.
func (s *Store) Load(expectedModel string) (warning string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.vectorsPath())
	if os.IsNotExist(err) {
		s.items = nil
		s.dims = 0
		s.hasModel = false
		s.model = ""
		s.corrupt = false
		return "", nil
	}
	if err != nil {
		return "", apperr.StoreCorrupt("failed to read vector file", err)
	}

	if len(data) < 8 {
		return "", apperr.StoreCorrupt("vector file shorter than header", nil)
	}
	count := int(int32(binary.LittleEndian.Uint32(data[0:4])))
	dims := int(int32(binary.LittleEndian.Uint32(data[4:8])))
	if count < 0 || dims < 0 {
		return "", apperr.StoreCorrupt("vector file has negative count or dims", nil)
	}

	offset := 8
	hasModel := false
	model := ""
	if len(data) >= offset+4 {
		modelLen := int(int32(binary.LittleEndian.Uint32(data[offset : offset+4])))
		if modelLen >= legacyModelLenMin && modelLen <= legacyModelLenMax {
			offset += 4
			if len(data) < offset+modelLen {
				return "", apperr.StoreCorrupt("vector file truncated in model name", nil)
			}
			model = string(data[offset : offset+modelLen])
			offset += modelLen
			hasModel = true
		}
		// else: legacy file. Seek back — offset is left unchanged so the
		// four bytes just inspected are reinterpreted as vector data.
	}

	vectorBytes := len(data) - offset
	if dims > 0 && vectorBytes%(dims*4) != 0 {
		return "", apperr.StoreCorrupt("vector file length is not a multiple of dims", nil)
	}
	available := 0
	if dims > 0 {
		available = vectorBytes / (dims * 4)
	}
	if available != count {
		// Warn on mismatch, truncate to the smaller of the two (spec.md §4.2).
		warning = fmt.Sprintf("vector count header (%d) disagrees with file length (%d); truncating", count, available)
		if available < count {
			count = available
		}
	}

	if expectedModel != "" && hasModel && model != expectedModel {
		return "", apperr.ModelMismatch(fmt.Sprintf("collection %q was embedded with model %q, expected %q", s.name, model, expectedModel))
	}
	if expectedModel != "" && !hasModel && count > 0 {
		warning = strings.TrimSpace(warning + "; legacy store has no model header, assuming caller's model is correct")
	}

	items := make([]Record, 0, count)
	if count > 0 {
		entries, mErr := s.readMetadata()
		if mErr != nil {
			return "", mErr
		}
		if len(entries) < count {
			count = len(entries)
		}
		reader := bytes.NewReader(data[offset:])
		for i := 0; i < count; i++ {
			vec := make([]float32, dims)
			if err := binary.Read(reader, binary.LittleEndian, &vec); err != nil {
				return "", apperr.StoreCorrupt("failed to read vector payload", err)
			}
			items = append(items, Record{
				ID:       entries[i].ID,
				Vector:   vec,
				Metadata: entries[i].Metadata,
			})
		}
	}

	s.items = items
	s.dims = dims
	s.hasModel = hasModel
	s.model = model
	s.corrupt = false
	return warning, nil
}

func (s *Store) readMetadata() ([]metadataEntry, error) {
	data, err := os.ReadFile(s.metadataPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreCorrupt("failed to read metadata file", err)
	}
	var entries []metadataEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, apperr.StoreCorrupt("metadata file is not valid JSON", err)
	}
	return entries, nil
}

// Add appends a record, binding the store's dims/model on the first insert
// and rejecting any disagreement thereafter. A loaded legacy store (records
// but no model) is bound to the model of its first insert, whose vector
// must match the existing dims.
func (s *Store) Add(id string, vector []float32, metadata ChunkMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasModel {
		if len(s.items) > 0 && len(vector) != s.dims {
			return apperr.DimensionMismatch(s.dims, len(vector))
		}
		s.dims = len(vector)
		s.model = metadata.EmbeddingModel
		s.hasModel = true
	} else {
		if len(vector) != s.dims {
			return apperr.DimensionMismatch(s.dims, len(vector))
		}
		if metadata.EmbeddingModel != s.model {
			return apperr.ModelMismatch(fmt.Sprintf("collection %q is bound to model %q, got %q", s.name, s.model, metadata.EmbeddingModel))
		}
	}

	s.items = append(s.items, Record{ID: id, Vector: vector, Metadata: metadata})
	return nil
}

// Delete removes every record whose FileName matches name (case-insensitive)
// and returns the number removed.
func (s *Store) Delete(fileName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := strings.ToLower(fileName)
	kept := s.items[:0:0]
	removed := 0
	for _, it := range s.items {
		if strings.ToLower(it.Metadata.FileName) == target {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	return removed
}

// Rename updates fileName and sourcePath on every record matching
// oldFileName, without touching vectors or re-embedding — the rename
// branch of the smart-ingestion algorithm (spec.md §4.3 step 3) updates
// the manifest key and every affected record's fileName in lockstep, so
// the "no record's fileName is absent from the manifest" invariant (§3)
// never transiently breaks.
func (s *Store) Rename(oldFileName, newFileName, newSourcePath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := strings.ToLower(oldFileName)
	renamed := 0
	for i := range s.items {
		if strings.ToLower(s.items[i].Metadata.FileName) == target {
			s.items[i].Metadata.FileName = newFileName
			s.items[i].Metadata.SourcePath = newSourcePath
			renamed++
		}
	}
	return renamed
}

// FindNearest performs brute-force cosine search over every item, filters
// by minScore, and returns at most k results sorted by score descending.
// Fails with StoreCorrupt once MarkCorrupt has been called.
func (s *Store) FindNearest(query []float32, k int, minScore float32, queryModel string) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.corrupt {
		return nil, apperr.StoreCorrupt(fmt.Sprintf("collection %q is corrupt", s.name), nil)
	}

	if s.hasModel && queryModel != "" && queryModel != s.model {
		return nil, apperr.ModelMismatch(fmt.Sprintf("collection %q is bound to model %q, query used %q", s.name, s.model, queryModel))
	}
	if len(s.items) > 0 && len(query) != s.dims {
		return nil, apperr.DimensionMismatch(s.dims, len(query))
	}

	scores := make([]float32, len(s.items))
	for i, it := range s.items {
		sc, err := vectormath.CosineSimilarity(query, it.Vector)
		if err != nil {
			return nil, err
		}
		scores[i] = sc
	}

	qualifying := make([]int, 0, len(scores))
	for i, sc := range scores {
		if sc >= minScore {
			qualifying = append(qualifying, i)
		}
	}
	qualScores := make([]float32, len(qualifying))
	for i, idx := range qualifying {
		qualScores[i] = scores[idx]
	}

	top := vectormath.TopK(qualScores, k)
	out := make([]SearchResult, len(top))
	for i, localIdx := range top {
		idx := qualifying[localIdx]
		out[i] = SearchResult{ID: s.items[idx].ID, Score: scores[idx], Metadata: s.items[idx].Metadata}
	}
	return out, nil
}

// Save atomically rewrites both files: write to .tmp, fsync, rename.
func (s *Store) Save() error {
	s.mu.RLock()
	count := len(s.items)
	dims := s.dims
	model := s.model
	items := make([]Record, count)
	copy(items, s.items)
	s.mu.RUnlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperr.Internal("failed to create collection directory", err)
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, int32(count))
	_ = binary.Write(&buf, binary.LittleEndian, int32(dims))
	modelBytes := []byte(model)
	_ = binary.Write(&buf, binary.LittleEndian, int32(len(modelBytes)))
	buf.Write(modelBytes)
	for _, it := range items {
		for _, v := range it.Vector {
			_ = binary.Write(&buf, binary.LittleEndian, v)
		}
	}

	if err := atomicWrite(s.vectorsPath(), buf.Bytes()); err != nil {
		return err
	}

	entries := make([]metadataEntry, count)
	for i, it := range items {
		entries[i] = metadataEntry{ID: it.ID, Metadata: it.Metadata}
	}
	metaBytes, err := json.Marshal(entries)
	if err != nil {
		return apperr.Internal("failed to marshal metadata", err)
	}
	return atomicWrite(s.metadataPath(), metaBytes)
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Internal("failed to open temp file", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return apperr.Internal("failed to write temp file", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return apperr.Internal("failed to fsync temp file", err)
	}
	if err := f.Close(); err != nil {
		return apperr.Internal("failed to close temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.Internal("failed to rename temp file into place", err)
	}
	return nil
}

// Stats reports a point-in-time summary for /api/index/metrics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := HealthOK
	switch {
	case s.corrupt:
		health = HealthCorrupt
	case len(s.items) == 0:
		health = HealthEmpty
	}

	var size int64
	if info, err := os.Stat(s.vectorsPath()); err == nil {
		size += info.Size()
	}
	if info, err := os.Stat(s.metadataPath()); err == nil {
		size += info.Size()
	}

	return Stats{
		VectorCount:    len(s.items),
		Dimension:      s.dims,
		EmbeddingModel: s.model,
		TotalSizeBytes: size,
		Health:         health,
	}
}

// MarkCorrupt lets a caller (e.g. the collection registry, after a failed
// Load) force the health reported via Stats to CORRUPT. The store is left
// empty so queries fail closed rather than serving a partial index.
func (s *Store) MarkCorrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt = true
	s.items = nil
}

