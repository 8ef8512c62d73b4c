package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const SchemaVersion = 1

var ErrNotFound = errors.New("state file not found")

// envelope wraps every persisted blob so shape changes in the payload are
// detected as a version mismatch instead of a silent partial decode.
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Store reads and writes small JSON state blobs under a single directory.
// A missing, corrupt, or version-mismatched file is reported as ErrNotFound
// so callers fall through to a network fetch.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *Store) Load(name string, out any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read state %s: %w", name, err)
	}
	return Decode(data, out)
}

func (s *Store) Write(name string, payload any) error {
	data, err := Encode(payload)
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path(name), data, 0o600)
}

// Erase removes a state blob. Removing an absent file is not an error.
func (s *Store) Erase(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("erase state %s: %w", name, err)
	}
	return nil
}

func Encode(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal state payload: %w", err)
	}
	data, err := json.MarshalIndent(envelope{SchemaVersion: SchemaVersion, Payload: raw}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

func Decode(data []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ErrNotFound
	}
	if env.SchemaVersion != SchemaVersion {
		return ErrNotFound
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return ErrNotFound
	}
	return nil
}
