package discovery

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Scanner scans for test files matching a pattern such as "spec/**/*_spec.rb"
type Scanner struct {
	skipDirs map[string]bool
}

// NewScanner creates a new Scanner with the given directories to skip
func NewScanner(skipDirs []string) *Scanner {
	skipMap := make(map[string]bool)
	for _, dir := range skipDirs {
		skipMap[dir] = true
	}
	return &Scanner{skipDirs: skipMap}
}

// Scan finds all files under projectRoot matching pattern. Returned paths are
// slash-separated and relative to projectRoot, in walk (lexical) order.
func (s *Scanner) Scan(projectRoot, pattern string) ([]string, error) {
	var testfiles []string

	projectRoot = filepath.Clean(projectRoot)
	root := filepath.Join(projectRoot, filepath.FromSlash(PatternRoot(pattern)))
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("test path does not exist: %s", root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("test path is not a directory: %s", root)
	}

	err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			name := d.Name()
			// Skip hidden directories (starting with .)
			if p != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if s.skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(projectRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if Match(pattern, rel) {
			testfiles = append(testfiles, rel)
		}
		return nil
	})

	return testfiles, err
}

// PatternRoot returns the leading directories of pattern that contain no wildcard
func PatternRoot(pattern string) string {
	parts := strings.Split(path.Clean(filepath.ToSlash(pattern)), "/")
	var fixed []string
	for _, part := range parts[:len(parts)-1] {
		if strings.ContainsAny(part, "*?[") {
			break
		}
		fixed = append(fixed, part)
	}
	if len(fixed) == 0 {
		return "."
	}
	return strings.Join(fixed, "/")
}

// Match reports whether the slash-separated name matches pattern, where "**"
// matches any number of directories
func Match(pattern, name string) bool {
	return matchParts(strings.Split(path.Clean(pattern), "/"), strings.Split(path.Clean(name), "/"))
}

func matchParts(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(name); i++ {
				if matchParts(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		ok, err := path.Match(pattern[0], name[0])
		if err != nil || !ok {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}
