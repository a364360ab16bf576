package markdown

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrOutsideVault is returned for note paths that escape the vault root.
var ErrOutsideVault = errors.New("note path is outside the vault")

// Vault resolves vault-relative note paths to documents.
type Vault struct {
	root string
	// realRoot is root with symlinks evaluated.
	realRoot string
	store    MetadataStore
}

// NewVault returns a vault rooted at root.
func NewVault(root string, store MetadataStore) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve vault root %s", root)
	}
	root = filepath.Clean(abs)
	realRoot, err := evalExisting(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve vault root %s", root)
	}
	return &Vault{root: root, realRoot: realRoot, store: store}, nil
}

// Root returns the absolute vault directory.
func (v *Vault) Root() string {
	return v.root
}

// Resolve maps a vault-relative path to an absolute one inside the vault.
func (v *Vault) Resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", errors.New("note path is required")
	}
	if filepath.IsAbs(rel) {
		return "", errors.Wrapf(ErrOutsideVault, "%s", rel)
	}
	if !strings.EqualFold(filepath.Ext(rel), ".md") {
		return "", errors.Errorf("%s is not a markdown note", rel)
	}
	full := filepath.Join(v.root, filepath.FromSlash(rel))
	if !within(v.root, full) {
		return "", errors.Wrapf(ErrOutsideVault, "%s", rel)
	}
	// A symlink inside the vault may still point outside it.
	target, err := evalExisting(full)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", rel)
	}
	if !within(v.realRoot, target) {
		return "", errors.Wrapf(ErrOutsideVault, "%s", rel)
	}
	return full, nil
}

func within(root, path string) bool {
	inside, err := filepath.Rel(root, path)
	return err == nil && inside != ".." && !strings.HasPrefix(inside, ".."+string(filepath.Separator))
}

// evalExisting evaluates symlinks in the longest existing prefix of path and
// appends the missing remainder unchanged.
func evalExisting(path string) (string, error) {
	rest := ""
	for {
		resolved, err := filepath.EvalSymlinks(path)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", err
		}
		rest = filepath.Join(filepath.Base(path), rest)
		path = parent
	}
}

// Open returns the document for a vault-relative path.
func (v *Vault) Open(rel string, opts ...Option) (*FileDocument, error) {
	full, err := v.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return NewFileDocument(v.store, full, opts...)
}
