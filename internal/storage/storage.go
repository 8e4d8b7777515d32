package storage

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/types"
)

const dayLayout = "2006-01-02"

// Storage writes JSON lines to a daily file and gzips the previous days
type Storage struct {
	outputDir string
	prefix    string
	logger    logger.Logger
	now       func() time.Time

	file     *os.File
	day      string
	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new Storage instance writing <prefix>_<date>.log files
func New(outputDir, prefix string, log logger.Logger) *Storage {
	return &Storage{
		outputDir: outputDir,
		prefix:    prefix,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
		stopChan:  make(chan struct{}),
	}
}

// Start initializes the storage system and starts the rotation timer
func (s *Storage) Start() error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	s.mu.Lock()
	err := s.rotateFile()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go s.rotationTimer()

	return nil
}

// Stop closes the current file and stops the rotation timer
func (s *Storage) Stop() error {
	close(s.stopChan)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// WriteMessage writes a message to the current log file
func (s *Storage) WriteMessage(message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil || s.day != s.now().Format(dayLayout) {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}

	// Check if message already ends with newline
	if len(message) > 0 && message[len(message)-1] == '\n' {
		_, err := s.file.Write(message)
		return err
	}

	_, err := s.file.Write(append(message, '\n'))
	return err
}

// WriteJSON marshals v and writes it as one line
func (s *Storage) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.WriteMessage(data)
}

// Record appends an API call to the audit file
func (s *Storage) Record(_ context.Context, entry *types.APICallLog) error {
	return s.WriteJSON(entry)
}

// rotationTimer handles daily rotation at midnight UTC
func (s *Storage) rotationTimer() {
	defer s.wg.Done()

	for {
		now := s.now()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		waitTime := nextMidnight.Sub(now)

		select {
		case <-time.After(waitTime):
			s.mu.Lock()
			err := s.rotateLocked()
			s.mu.Unlock()
			if err != nil {
				s.logger.Error("Error during rotation", "error", err)
			}
		case <-s.stopChan:
			return
		}
	}
}

// rotateLocked closes the current file, compresses it if its day is over and opens today's file
func (s *Storage) rotateLocked() error {
	today := s.now().Format(dayLayout)
	if s.file != nil && s.day == today {
		return nil
	}

	previous := ""
	if s.file != nil {
		previous = s.file.Name()
		if err := s.file.Close(); err != nil {
			s.logger.Warn("Failed to close log file", "file", previous, "error", err)
		}
		s.file = nil
	}

	if previous != "" && s.day != today {
		if err := compressFile(previous); err != nil {
			return fmt.Errorf("failed to compress file: %w", err)
		}
	}

	return s.rotateFile()
}

// compressFile compresses a file using gzip and removes the original
func compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer target.Close()

	gzipWriter := gzip.NewWriter(target)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		gzipWriter.Close()
		return err
	}

	// Close the gzip writer to ensure all data is written
	if err := gzipWriter.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// rotateFile opens the log file for the current day
func (s *Storage) rotateFile() error {
	day := s.now().Format(dayLayout)
	filename := filepath.Join(s.outputDir, fmt.Sprintf("%s_%s.log", s.prefix, day))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	s.file = file
	s.day = day
	return nil
}
