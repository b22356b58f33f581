package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"polescan/internal/logger"
)

// Snapshot is one annotated tile image awaiting flush to disk.
type Snapshot struct {
	Timestamp string
	TileID    int64
	Provider  string
	Data      []byte
}

// BufferService batches annotated tile snapshots in memory and flushes
// them to disk on a fixed interval, keeping image writes off the tile
// worker path.
type BufferService struct {
	snapshotsDir string
	snapshots    []Snapshot
	bufferLimit  int
	logger       *logger.Logger
	mu           sync.Mutex
}

func NewBufferService(snapshotsDir string, bufferLimit int, logger *logger.Logger) *BufferService {
	return &BufferService{
		snapshotsDir: snapshotsDir,
		bufferLimit:  bufferLimit,
		snapshots:    make([]Snapshot, 0),
		logger:       logger,
	}
}

func (s *BufferService) Run(flushInterval int) {
	ticker := time.NewTicker(time.Duration(flushInterval) * time.Second)

	defer ticker.Stop()
	for {
		<-ticker.C
		s.Flush()
	}
}

// Add queues a snapshot. Over the buffer limit the snapshot is dropped;
// detections themselves are already persisted, the image is a debugging
// aid only.
func (s *BufferService) Add(imageData []byte, tileID int64, provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) >= s.bufferLimit {
		s.logger.Warning("Snapshot buffer full (%d) - dropping tile %d", s.bufferLimit, tileID)
		return
	}

	s.snapshots = append(s.snapshots, Snapshot{
		Timestamp: time.Now().Format("2006-01-02_15-04-05"),
		TileID:    tileID,
		Provider:  provider,
		Data:      imageData,
	})
}

func (s *BufferService) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) == 0 {
		return
	}

	if err := os.MkdirAll(s.snapshotsDir, 0755); err != nil {
		s.logger.Error("Error creating snapshot directory: %v", err)
		return
	}

	for _, snap := range s.snapshots {
		filename := fmt.Sprintf("%s_tile%d_%s.jpg", snap.Timestamp, snap.TileID, snap.Provider)
		fullpath := filepath.Join(s.snapshotsDir, filename)

		if err := os.WriteFile(fullpath, snap.Data, 0644); err != nil {
			s.logger.Error("Error saving snapshot %s: %v", filename, err)
			continue
		}
	}

	s.logger.Info("Flushed %d snapshot(s) to disk", len(s.snapshots))
	s.snapshots = s.snapshots[:0]
}
