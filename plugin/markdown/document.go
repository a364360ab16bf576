package markdown

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileDocument is a note addressed by path whose metadata is merged through a MetadataStore.
type FileDocument struct {
	store MetadataStore
	path  string
	plain bool
}

// Option configures a FileDocument.
type Option func(*FileDocument)

// WithPlainText makes Content render the body to plain text.
func WithPlainText(plain bool) Option {
	return func(d *FileDocument) { d.plain = plain }
}

// NewFileDocument returns a document for the note at path.
func NewFileDocument(store MetadataStore, path string, opts ...Option) (*FileDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", path)
	}
	d := &FileDocument{store: store, path: filepath.Clean(abs)}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ID identifies the note; two documents for the same file share it.
func (d *FileDocument) ID() string {
	return d.path
}

// Path returns the absolute note path.
func (d *FileDocument) Path() string {
	return d.path
}

// Content returns the body without front matter. ok is false when the note does not exist.
func (d *FileDocument) Content() (string, bool, error) {
	_, body, err := d.store.Read(d.path)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return "", false, nil
		}
		return "", false, err
	}
	if d.plain {
		text, err := PlainText(body)
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	}
	return string(body), true, nil
}

// InsertAtFrontMatter merges one key into the note's front matter and persists it.
func (d *FileDocument) InsertAtFrontMatter(key string, value any, overwrite bool) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("front matter key must not be empty")
	}
	return d.store.Update(d.path, func(fm *FrontMatter) error {
		return errors.Wrapf(fm.Insert(key, value, overwrite), "failed to set %q", key)
	})
}
