package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manager enforces filesystem allow-list and path validation guardrails.
// It resolves and stores canonical absolute directory paths and validates
// that input tables and result files stay within these roots and carry
// supported extensions.
type Manager struct {
	allowedDirs []string
	allowedExts map[string]struct{}
	outputExts  map[string]struct{}
}

// ErrNotAllowed indicates the requested path is outside the allow-list roots.
var ErrNotAllowed = errors.New("security: path not allowed")

// ErrUnsupportedExtension indicates the requested file extension is not supported.
var ErrUnsupportedExtension = errors.New("security: unsupported file extension")

// ErrNotFound indicates the requested file does not exist or is not accessible.
var ErrNotFound = errors.New("security: file not found")

// AllowedDirsEnv names the path-list variable read by NewManagerFromEnv.
const AllowedDirsEnv = "SECTORSPACE_ALLOWED_DIRS"

// DefaultInputExtensions are the table formats the loaders understand.
var DefaultInputExtensions = []string{".xlsx", ".csv"}

// DefaultOutputExtensions cover the results workbook, CSV exports and the run manifest.
var DefaultOutputExtensions = []string{".xlsx", ".csv", ".yaml", ".yml"}

// NewManager constructs a security manager given an allow-list of directories
// and a list of allowed input extensions (case-insensitive, with leading dot).
// Directories are canonicalized (absolute + EvalSymlinks) and validated.
func NewManager(allowDirs []string, allowedExtensions []string) (*Manager, error) {
	if len(allowedExtensions) == 0 {
		allowedExtensions = DefaultInputExtensions
	}
	exts, err := extSet(allowedExtensions)
	if err != nil {
		return nil, err
	}
	outs, err := extSet(DefaultOutputExtensions)
	if err != nil {
		return nil, err
	}

	canonical := make([]string, 0, len(allowDirs))
	for _, d := range allowDirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		real, err := canonicalDir(d)
		if err != nil {
			return nil, err
		}
		canonical = append(canonical, real)
	}

	return &Manager{allowedDirs: canonical, allowedExts: exts, outputExts: outs}, nil
}

func extSet(list []string) (map[string]struct{}, error) {
	exts := make(map[string]struct{}, len(list))
	for _, e := range list {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || !strings.HasPrefix(e, ".") {
			return nil, fmt.Errorf("security: invalid extension: %q", e)
		}
		exts[e] = struct{}{}
	}
	return exts, nil
}

func canonicalDir(d string) (string, error) {
	abs, err := filepath.Abs(d)
	if err != nil {
		return "", fmt.Errorf("security: resolve abs for %q: %w", d, err)
	}
	// EvalSymlinks so that symlinked roots cannot be used to escape later.
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("security: eval symlinks for %q: %w", abs, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", fmt.Errorf("security: stat %q: %w", real, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("security: allow-list entry is not a directory: %q", real)
	}
	return filepath.Clean(real), nil
}

// NewManagerFromEnv constructs a Manager from SECTORSPACE_ALLOWED_DIRS as a
// path list separated by os.PathListSeparator. If the variable is empty, an
// empty allow-list is used (deny-by-default).
func NewManagerFromEnv() (*Manager, error) {
	list := os.Getenv(AllowedDirsEnv)
	var dirs []string
	if list != "" {
		dirs = filepath.SplitList(list)
	}
	return NewManager(dirs, nil)
}

// AllowedDirectories returns the canonical allow-list roots.
func (m *Manager) AllowedDirectories() []string {
	out := make([]string, len(m.allowedDirs))
	copy(out, m.allowedDirs)
	return out
}

// ValidateConfig returns an error when no allow-list entries are configured.
// File operations stay disabled until the operator provides directories.
func (m *Manager) ValidateConfig() error {
	if len(m.allowedDirs) == 0 {
		return errors.New("security: no allowed directories configured")
	}
	return nil
}

// ValidateOpenPath ensures the input path refers to an existing file with an
// allowed extension inside one of the configured allow-list directories.
// It returns the canonical absolute path suitable for opening.
func (m *Manager) ValidateOpenPath(input string) (string, error) {
	if input == "" {
		return "", ErrNotAllowed
	}
	ext := strings.ToLower(filepath.Ext(input))
	if _, ok := m.allowedExts[ext]; !ok {
		return "", ErrUnsupportedExtension
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return "", fmt.Errorf("security: abs path: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: eval symlinks: %w", err)
	}

	info, err := os.Stat(real)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: stat: %w", err)
	}
	if info.IsDir() {
		return "", ErrNotAllowed
	}
	if !m.contains(real) {
		return "", ErrNotAllowed
	}
	return real, nil
}

// ValidateOutputPath checks a results path before writing. The file need not
// exist, but its directory must, and that directory must resolve inside an
// allow-list root.
func (m *Manager) ValidateOutputPath(output string) (string, error) {
	if output == "" {
		return "", ErrNotAllowed
	}
	ext := strings.ToLower(filepath.Ext(output))
	if _, ok := m.outputExts[ext]; !ok {
		return "", ErrUnsupportedExtension
	}
	abs, err := filepath.Abs(output)
	if err != nil {
		return "", fmt.Errorf("security: abs path: %w", err)
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("security: eval symlinks: %w", err)
	}
	target := filepath.Join(dir, filepath.Base(abs))
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", ErrNotAllowed
	}
	if !m.contains(target) {
		return "", ErrNotAllowed
	}
	return target, nil
}

// contains reports whether real sits strictly below one of the roots.
func (m *Manager) contains(real string) bool {
	for _, root := range m.allowedDirs {
		rel, err := filepath.Rel(root, real)
		if err != nil || rel == "." || rel == "" {
			continue
		}
		if !strings.HasPrefix(filepath.Clean(rel), "..") {
			return true
		}
	}
	return false
}
