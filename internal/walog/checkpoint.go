package walog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/relatedb/s4/internal/s4err"
	"github.com/relatedb/s4/internal/store"
	"github.com/relatedb/s4/internal/value"
)

// snapshotMagic/snapshotVersion match spec.md §4.5's snapshot header
// exactly: magic="s4db", version=1, a 16-byte instance uuid, and the
// last_checkpoint sequence number the snapshot subsumes.
const snapshotMagic = "s4db"
const snapshotVersion int32 = 1

// dictTerminator is the sentinel id closing the snapshot's string
// dictionary (spec.md §4.5: "terminated by id=-1").
const dictTerminator int32 = -1

// WriteSnapshot serializes the entire store to path: a header (magic,
// version, a freshly minted instance uuid, and last_checkpoint), a string
// dictionary of every distinct key/source/string-value, then the packed
// (key_a, val_a, key_b, val_b, src) records referencing that dictionary
// by id — negative ids for an inline integer, positive ids for a
// dictionary string (spec.md §4.5 "Checkpoint file").
//
// Grounded on original_source/src/lib/s4.c's s4_header_t (magic/version/
// uuid/last_checkpoint) and its _read_string/_write_string dictionary
// plus packed-record body, and on original_source/src/lib/uuid.c for the
// per-database random uuid (generated here with google/uuid instead of
// hand-rolled random bytes). The teacher has no direct analogue — dolt
// owns its own on-disk format — so the binary layout is built straight
// from the specification using encoding/binary.
func WriteSnapshot(path string, s *store.Store, lastCheckpoint int64) error {
	f, err := os.CreateTemp(filepath.Dir(path), "s4snap-*")
	if err != nil {
		return s4err.Wrap(s4err.ErrOpen, err)
	}
	tmpName := f.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(f)

	id := uuid.New()
	if err := writeSnapshotHeader(w, id, lastCheckpoint); err != nil {
		f.Close()
		return s4err.Wrap(s4err.ErrOpen, err)
	}

	dict := newDictionary()
	records := collectRecords(s, dict)

	if err := dict.write(w); err != nil {
		f.Close()
		return s4err.Wrap(s4err.ErrOpen, err)
	}
	for _, rec := range records {
		if err := writeInt32s(w, rec.keyA, rec.valA, rec.keyB, rec.valB, rec.src); err != nil {
			f.Close()
			return s4err.Wrap(s4err.ErrOpen, err)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return s4err.Wrap(s4err.ErrOpen, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return s4err.Wrap(s4err.ErrOpen, err)
	}
	if err := f.Close(); err != nil {
		return s4err.Wrap(s4err.ErrOpen, err)
	}

	return os.Rename(tmpName, path)
}

func writeSnapshotHeader(w *bufio.Writer, id uuid.UUID, lastCheckpoint int64) error {
	if _, err := w.WriteString(snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, snapshotVersion); err != nil {
		return err
	}
	idBytes := id[:]
	if _, err := w.Write(idBytes); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, int32(lastCheckpoint))
}

func writeInt32s(w *bufio.Writer, vs ...int32) error {
	for _, v := range vs {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

// dictionary assigns small positive ids to distinct strings, in
// first-seen order, so the packed records can reference keys/sources/
// string values compactly.
type dictionary struct {
	ids     map[string]int32
	strings []string
}

func newDictionary() *dictionary {
	return &dictionary{ids: make(map[string]int32)}
}

func (d *dictionary) id(s string) int32 {
	if id, ok := d.ids[s]; ok {
		return id
	}
	id := int32(len(d.strings)) + 1
	d.ids[s] = id
	d.strings = append(d.strings, s)
	return id
}

func (d *dictionary) write(w *bufio.Writer) error {
	for i, s := range d.strings {
		id := int32(i) + 1
		if err := writeInt32s(w, id, int32(len(s))); err != nil {
			return err
		}
		if _, err := w.WriteString(s); err != nil {
			return err
		}
	}
	return writeInt32s(w, dictTerminator)
}

type packedRecord struct {
	keyA, valA, keyB, valB, src int32
}

// collectRecords walks every a-index/entry/tuple in the store, dictionary-
// encoding each key name, source, and string value. Following
// original_source/src/lib/s4.c's _read_relations layout, the sign of the
// key_a/key_b field — not the value field — carries the value's type: a
// positive key id means val_a/val_b holds a dictionary id for a string, a
// negative key id means it holds an inline int32 (spec.md §4.5: "a
// positive key id marks a string value-id and a negative key id marks an
// inline integer").
func collectRecords(s *store.Store, dict *dictionary) []packedRecord {
	var out []packedRecord
	for keyA, aIdx := range s.AllAIndices() {
		keyAID := dict.id(keyA.String())
		for _, entry := range aIdx.All() {
			signedKeyA, valAField := encodeKeyedValue(keyAID, entry.ValA, dict)
			for _, t := range entry.Tuples() {
				keyBID := dict.id(t.KeyB.String())
				signedKeyB, valBField := encodeKeyedValue(keyBID, t.ValB, dict)
				out = append(out, packedRecord{
					keyA: signedKeyA,
					valA: valAField,
					keyB: signedKeyB,
					valB: valBField,
					src:  dict.id(t.Src.String()),
				})
			}
		}
	}
	return out
}

// encodeKeyedValue returns the signed key id and the value field for one
// side of a record: keyID negated and v's raw int when v is an integer,
// keyID unchanged and a dictionary id when v is a string.
func encodeKeyedValue(keyID int32, v *value.Value, dict *dictionary) (signedKey, valField int32) {
	if v.IsInt() {
		return -keyID, v.GetInt()
	}
	return keyID, dict.id(v.GetStr())
}

func decodeKeyedValue(signedKey, valField int32, strings []string) (keyID int32, v *value.Value, err error) {
	if signedKey < 0 {
		iv := value.Int(valField)
		return -signedKey, &iv, nil
	}
	if signedKey == 0 || int(valField) > len(strings) || valField <= 0 {
		return 0, nil, fmt.Errorf("walog: snapshot value id %d out of range", valField)
	}
	sv := value.Str(strings[valField-1])
	return signedKey, &sv, nil
}

// SnapshotRecord is one decoded (key_a, val_a, key_b, val_b, src) tuple
// from a checkpoint file, ready to be replayed through the normal add
// path.
type SnapshotRecord struct {
	KeyA, KeyB, Src string
	ValA, ValB      *value.Value
}

// Snapshot is a fully decoded checkpoint file.
type Snapshot struct {
	ID             uuid.UUID
	LastCheckpoint int64
	Records        []SnapshotRecord
}

// ReadSnapshot loads and decodes the checkpoint file at path. A missing
// file is reported as os.IsNotExist(err); callers open a fresh, empty
// database in that case rather than failing (spec.md §4.5 "Recovery on
// open": "Read snapshot if present").
func ReadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, s4err.Wrap(s4err.ErrMagic, err)
	}
	if string(magic) != snapshotMagic {
		return nil, s4err.New(s4err.ErrMagic)
	}

	var version int32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, s4err.Wrap(s4err.ErrVersion, err)
	}
	if version != snapshotVersion {
		return nil, s4err.New(s4err.ErrVersion)
	}

	var idBytes [16]byte
	if _, err := io.ReadFull(r, idBytes[:]); err != nil {
		return nil, s4err.Wrap(s4err.ErrInconsistent, err)
	}
	id, err := uuid.FromBytes(idBytes[:])
	if err != nil {
		return nil, s4err.Wrap(s4err.ErrInconsistent, err)
	}

	var lastCheckpoint int32
	if err := binary.Read(r, binary.LittleEndian, &lastCheckpoint); err != nil {
		return nil, s4err.Wrap(s4err.ErrInconsistent, err)
	}

	strs, err := readDictionary(r)
	if err != nil {
		return nil, s4err.Wrap(s4err.ErrInconsistent, err)
	}

	var records []SnapshotRecord
	for {
		var keyA, valA, keyB, valB, src int32
		if err := binary.Read(r, binary.LittleEndian, &keyA); err != nil {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &valA); err != nil {
			return nil, s4err.Wrap(s4err.ErrInconsistent, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &keyB); err != nil {
			return nil, s4err.Wrap(s4err.ErrInconsistent, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &valB); err != nil {
			return nil, s4err.Wrap(s4err.ErrInconsistent, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &src); err != nil {
			return nil, s4err.Wrap(s4err.ErrInconsistent, err)
		}

		keyAID, vA, err := decodeKeyedValue(keyA, valA, strs)
		if err != nil {
			return nil, s4err.Wrap(s4err.ErrInconsistent, err)
		}
		keyBID, vB, err := decodeKeyedValue(keyB, valB, strs)
		if err != nil {
			return nil, s4err.Wrap(s4err.ErrInconsistent, err)
		}
		keyAStr, err := dictLookup(keyAID, strs)
		if err != nil {
			return nil, s4err.Wrap(s4err.ErrInconsistent, err)
		}
		keyBStr, err := dictLookup(keyBID, strs)
		if err != nil {
			return nil, s4err.Wrap(s4err.ErrInconsistent, err)
		}
		srcStr, err := dictLookup(src, strs)
		if err != nil {
			return nil, s4err.Wrap(s4err.ErrInconsistent, err)
		}

		records = append(records, SnapshotRecord{
			KeyA: keyAStr, ValA: vA,
			KeyB: keyBStr, ValB: vB,
			Src: srcStr,
		})
	}

	return &Snapshot{ID: id, LastCheckpoint: int64(lastCheckpoint), Records: records}, nil
}

func readDictionary(r *bufio.Reader) ([]string, error) {
	var strs []string
	for {
		var id, length int32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, err
		}
		if id == dictTerminator {
			return strs, nil
		}
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, err
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		strs = append(strs, string(buf))
	}
}

// dictLookup resolves a key/source dictionary id (always positive: keys
// and sources are never inline integers).
func dictLookup(id int32, strs []string) (string, error) {
	if id <= 0 || int(id) > len(strs) {
		return "", fmt.Errorf("walog: dictionary id %d out of range", id)
	}
	return strs[id-1], nil
}
