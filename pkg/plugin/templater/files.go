package templater

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/notifico-tech/notifico/pkg/engine"
	"github.com/notifico-tech/notifico/pkg/models"
)

// FileTemplate is the on-disk template format: a JSON document with a parts
// map and optional attachment metadata.
type FileTemplate struct {
	Parts       map[string]string       `json:"parts"`
	Attachments []models.AttachmentMeta `json:"attachments,omitempty"`
}

// FileSource resolves `file` template selectors against a root directory.
// Paths are confined to the root; traversal outside it is rejected.
type FileSource struct {
	root string
}

// NewFileSource creates a source rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{root: filepath.Clean(dir)}
}

// Load reads and parses the template at the given relative path.
func (s *FileSource) Load(relPath string) (*FileTemplate, error) {
	full := filepath.Join(s.root, filepath.Clean("/"+relPath))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: path %q escapes template root", engine.ErrTemplateNotFound, relPath)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", engine.ErrTemplateNotFound, relPath)
		}
		return nil, fmt.Errorf("failed to read template %q: %w", relPath, err)
	}

	var tpl FileTemplate
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("malformed template file %q: %w", relPath, err)
	}
	if len(tpl.Parts) == 0 {
		return nil, fmt.Errorf("template file %q has no parts", relPath)
	}
	return &tpl, nil
}
