package fileops

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// FileMetadata describes one file on disk
type FileMetadata struct {
	AbsolutePath string      `json:"absolute_path"`
	SizeBytes    int64       `json:"size_bytes"`
	Mode         os.FileMode `json:"mode"`
	Extension    string      `json:"extension,omitempty"`
	ModifiedAt   time.Time   `json:"modified_at"`
}

// Manager performs file copy, move, archive and metadata operations.
// Destination directories are created as needed.
type Manager struct {
	logger *zap.Logger
}

// NewManager creates a new file manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("fileops"),
	}
}

// Copy copies a file, creating missing destination directories and
// preserving the source file mode
func (m *Manager) Copy(source, target string) error {
	sourceFile, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	targetFile, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	defer targetFile.Close()

	if _, err = io.Copy(targetFile, sourceFile); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	sourceInfo, err := sourceFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get source file info: %w", err)
	}

	if err := os.Chmod(target, sourceInfo.Mode()); err != nil {
		return fmt.Errorf("failed to set target mode: %w", err)
	}

	m.logger.Info("Copied file",
		zap.String("source", source),
		zap.String("target", target))

	return nil
}

// Move moves a file, creating missing destination directories. Falls back
// to copy-and-remove when the rename crosses filesystems.
func (m *Manager) Move(source, target string) error {
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	if err := os.Rename(source, target); err != nil {
		if copyErr := m.Copy(source, target); copyErr != nil {
			return fmt.Errorf("failed to move file: %w", err)
		}
		if err := os.Remove(source); err != nil {
			return fmt.Errorf("failed to remove source after copy: %w", err)
		}
	}

	m.logger.Info("Moved file",
		zap.String("source", source),
		zap.String("target", target))

	return nil
}

// Compress writes the given source files into a ZIP archive at target.
// Fails before writing anything if any source is missing.
func (m *Manager) Compress(sources []string, target string) error {
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return fmt.Errorf("failed to stat source file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("source is a directory: %s", source)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	archive, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer archive.Close()

	writer := zip.NewWriter(archive)
	defer writer.Close()

	for _, source := range sources {
		if err := m.addToArchive(writer, source); err != nil {
			return err
		}
	}

	m.logger.Info("Created archive",
		zap.String("target", target),
		zap.Int("files", len(sources)))

	return nil
}

// addToArchive writes one file into the archive under its base name
func (m *Manager) addToArchive(writer *zip.Writer, source string) error {
	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get source file info: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build archive header: %w", err)
	}
	header.Name = filepath.Base(source)
	header.Method = zip.Deflate

	entry, err := writer.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create archive entry: %w", err)
	}

	if _, err := io.Copy(entry, file); err != nil {
		return fmt.Errorf("failed to write archive entry: %w", err)
	}

	return nil
}

// Metadata returns metadata for the given file
func (m *Manager) Metadata(path string) (*FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	return &FileMetadata{
		AbsolutePath: absPath,
		SizeBytes:    info.Size(),
		Mode:         info.Mode(),
		Extension:    filepath.Ext(path),
		ModifiedAt:   info.ModTime(),
	}, nil
}
