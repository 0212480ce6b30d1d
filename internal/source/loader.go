package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/subzap/internal/domain"
)

// Loader reads candidate batches from local paths or gs:// URIs.
type Loader struct {
	storage StorageService
}

// NewLoader creates a Loader. storage may be nil when only local files are read.
func NewLoader(storage StorageService) *Loader {
	return &Loader{storage: storage}
}

// Load reads and decodes one batch. The file name becomes the source id of
// candidates that do not carry one.
func (l *Loader) Load(ctx context.Context, location string) ([]domain.RawCandidate, error) {
	format, err := FormatFromName(location)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	var (
		data     []byte
		sourceID string
	)
	if IsGCSURI(location) {
		if l.storage == nil {
			return nil, fmt.Errorf("Load: no storage service configured for %s", location)
		}
		if data, err = l.storage.Fetch(ctx, location); err != nil {
			return nil, fmt.Errorf("Load: %w", err)
		}
		sourceID = ExtractFilenameFromGCSURI(location)
	} else {
		if data, err = os.ReadFile(location); err != nil {
			return nil, fmt.Errorf("Load: read %s: %w", location, err)
		}
		sourceID = filepath.Base(location)
	}

	candidates, err := Decode(format, data, sourceID)
	if err != nil {
		return nil, fmt.Errorf("Load: %s: %w", location, err)
	}
	return candidates, nil
}
