package offline

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/messenger-server-go/internal/model"
	"github.com/openclaw/messenger-server-go/internal/protocol"
)

var ErrCorruptFile = errors.New("offline store file is corrupt")

const (
	loginField = 32
	textField  = 512
)

// record is the fixed on-disk layout, little-endian with no padding.
type record struct {
	Type       uint8
	ID         uint32
	Timestamp  uint32
	Sender     [loginField]byte
	Receiver   [loginField]byte
	Text       [textField]byte
	Flags      uint16
	EnqueuedAt int64
	Attempts   uint32
}

var recordSize = binary.Size(record{})

// Save rewrites the whole file through a temp file and rename.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	snapshot := make([]PendingMessage, len(s.messages))
	copy(snapshot, s.messages)
	s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, snapshot); err != nil {
		tmp.Close()
		return fmt.Errorf("write store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}

	log.Debug().Str("path", s.path).Int("count", len(snapshot)).Msg("offline store saved")
	return nil
}

// Load replaces the store contents with the file. A missing file leaves the
// store empty; truncated or trailing data, or any record that fails
// validation, rejects the whole file.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", s.path).Msg("no offline store file, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store file: %w", err)
	}

	messages, err := decode(data, s.capacity)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()

	log.Info().Str("path", s.path).Int("count", len(messages)).Msg("offline store loaded")
	return nil
}

func encode(f *os.File, messages []PendingMessage) error {
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(messages))); err != nil {
		return err
	}
	for _, m := range messages {
		if err := binary.Write(w, binary.LittleEndian, toRecord(m)); err != nil {
			return err
		}
	}
	return w.Flush()
}

func decode(data []byte, capacity int) ([]PendingMessage, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: missing count prefix", ErrCorruptFile)
	}
	count := int(binary.LittleEndian.Uint32(data[:4]))
	if count > capacity {
		return nil, fmt.Errorf("%w: %d records exceed capacity %d", ErrCorruptFile, count, capacity)
	}
	if want := 4 + count*recordSize; len(data) != want {
		return nil, fmt.Errorf("%w: expected %d bytes for %d records, got %d", ErrCorruptFile, want, count, len(data))
	}

	r := bytes.NewReader(data[4:])
	messages := make([]PendingMessage, 0, count)
	seen := make(map[uint32]struct{}, count)
	for i := 0; i < count; i++ {
		var rec record
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptFile, i, err)
		}
		if err := checkRecord(rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptFile, i, err)
		}
		m := fromRecord(rec)
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("%w: record %d: duplicate id %d", ErrCorruptFile, i, m.ID)
		}
		seen[m.ID] = struct{}{}
		messages = append(messages, m)
	}
	return messages, nil
}

// checkRecord rejects anything Add could never have queued.
func checkRecord(rec record) error {
	if model.MessageType(rec.Type) != model.TypeText {
		return fmt.Errorf("unexpected type %d", rec.Type)
	}
	for _, field := range [][]byte{rec.Sender[:], rec.Receiver[:], rec.Text[:]} {
		if bytes.IndexByte(field, 0) < 0 {
			return errors.New("unterminated string field")
		}
	}
	if sender := getString(rec.Sender[:]); !protocol.IsValidLogin(sender) {
		return fmt.Errorf("invalid sender %q", sender)
	}
	if receiver := getString(rec.Receiver[:]); !protocol.IsValidLogin(receiver) {
		return fmt.Errorf("invalid receiver %q", receiver)
	}
	return nil
}

func toRecord(m PendingMessage) record {
	rec := record{
		Type:       uint8(m.Type),
		ID:         m.ID,
		Timestamp:  m.Timestamp,
		Flags:      uint16(m.Flags),
		EnqueuedAt: m.EnqueuedAt.Unix(),
		Attempts:   m.DeliveryAttempts,
	}
	putString(rec.Sender[:], m.Sender)
	putString(rec.Receiver[:], m.Receiver)
	putString(rec.Text[:], m.Body)
	return rec
}

func fromRecord(rec record) PendingMessage {
	return PendingMessage{
		ID:               rec.ID,
		Type:             model.MessageType(rec.Type),
		Sender:           getString(rec.Sender[:]),
		Receiver:         getString(rec.Receiver[:]),
		Body:             getString(rec.Text[:]),
		Timestamp:        rec.Timestamp,
		Flags:            model.Flags(rec.Flags),
		EnqueuedAt:       time.Unix(rec.EnqueuedAt, 0),
		DeliveryAttempts: rec.Attempts,
	}
}

// putString copies s into a NUL-terminated fixed field, truncating if needed.
func putString(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	clear(dst[n:])
}

func getString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
