package cursor

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// fileState is the on-disk shape. Title and timestamp are only there so an
// operator can eyeball the file.
type fileState struct {
	LastID    string    `json:"last_id"`
	Title     string    `json:"title,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore keeps the cursor in a small JSON file.
type FileStore struct {
	filePath string
	mu       sync.Mutex
}

func NewFileStore(filePath string) *FileStore {
	return &FileStore{filePath: filePath}
}

func (s *FileStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cursor file: %w", err)
	}

	if len(data) == 0 {
		return "", nil
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupt cursor degrades to "no cursor known", which puts the
		// pipeline into bootstrap mode instead of mass re-delivery.
		log.Printf("⚠️ Cursor file %s is unreadable, treating as absent: %v", s.filePath, err)
		return "", nil
	}

	return state.LastID, nil
}

func (s *FileStore) Save(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := fileState{
		LastID:    id,
		Title:     title,
		UpdatedAt: time.Now(),
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return fmt.Errorf("write cursor file: %w", err)
	}

	return nil
}

func (s *FileStore) Close() error {
	return nil
}
