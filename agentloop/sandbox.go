package agentloop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Sandbox confines all tool path arguments to a fixed root directory.
// Resolution is pure path arithmetic plus symlink inspection; file
// contents are never touched here.
type Sandbox struct {
	root string
	deny []string
}

// NewSandbox creates a sandbox rooted at root, which must exist. Deny
// patterns are doublestar globs matched against the root-relative form
// of every resolved path; matching paths are rejected even though they
// are inside the root.
func NewSandbox(root string, deny ...string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("sandbox root %q: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox root %q: %w", root, err)
	}
	for _, pattern := range deny {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid deny pattern %q", pattern)
		}
	}
	return &Sandbox{root: canonical, deny: deny}, nil
}

// Root returns the canonical sandbox root.
func (s *Sandbox) Root() string { return s.root }

// Resolve joins candidate to the root if relative, canonicalizes it
// (".", "..", and symlink indirection), and verifies the result is a
// path-component descendant of the root. It returns the canonical
// absolute path or a *SandboxViolationError; the candidate is never
// rewritten to fit.
//
// The candidate itself does not have to exist: symlinks are resolved
// through the deepest existing ancestor so that not-yet-created write
// targets still validate.
func (s *Sandbox) Resolve(candidate string) (string, error) {
	if candidate == "" {
		return "", &SandboxViolationError{Path: candidate}
	}
	p := candidate
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)

	canonical, err := canonicalize(p)
	if err != nil {
		return "", &SandboxViolationError{Path: candidate}
	}

	if !isDescendant(s.root, canonical) {
		return "", &SandboxViolationError{Path: candidate}
	}

	if len(s.deny) > 0 {
		rel, err := filepath.Rel(s.root, canonical)
		if err == nil {
			rel = filepath.ToSlash(rel)
			for _, pattern := range s.deny {
				if ok, _ := doublestar.Match(pattern, rel); ok {
					return "", &SandboxViolationError{Path: candidate}
				}
			}
		}
	}

	return canonical, nil
}

// canonicalize resolves symlinks through the deepest existing ancestor
// of p and reattaches the nonexistent remainder.
func canonicalize(p string) (string, error) {
	suffix := ""
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if suffix == "" {
				return resolved, nil
			}
			return filepath.Join(resolved, suffix), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		suffix = filepath.Join(filepath.Base(cur), suffix)
		cur = parent
	}
}

// isDescendant reports whether p equals root or sits below it. The
// comparison is component-wise: "/root2" is not a descendant of "/root".
func isDescendant(root, p string) bool {
	if p == root {
		return true
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}
