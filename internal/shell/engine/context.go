package engine

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// tarBuildContext streams contextDir as the tar archive the build API
// consumes. Patterns from .dockerignore are honored in their common forms:
// literal paths, directory names, trailing-slash directories, * globs via
// path.Match, and ! negations with last-match-wins.
func tarBuildContext(contextDir string) (io.ReadCloser, error) {
	info, err := os.Stat(contextDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrContextUnreadable, contextDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrContextUnreadable, contextDir)
	}

	rules, err := readDockerignore(filepath.Join(contextDir, ".dockerignore"))
	if err != nil {
		return nil, err
	}

	// A negation can re-include a file under an excluded directory, so
	// directory pruning is only safe when no negations exist.
	canPrune := true
	for _, r := range rules {
		if r.negate {
			canPrune = false
			break
		}
	}

	pr, pw := io.Pipe()
	go func() {
		tw := tar.NewWriter(pw)

		walkErr := filepath.WalkDir(contextDir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(contextDir, p)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if excluded(rules, rel) {
				if d.IsDir() && canPrune {
					return fs.SkipDir
				}
				return nil
			}

			fi, err := d.Info()
			if err != nil {
				return err
			}

			var link string
			if fi.Mode()&fs.ModeSymlink != 0 {
				if link, err = os.Readlink(p); err != nil {
					return err
				}
			}

			hdr, err := tar.FileInfoHeader(fi, link)
			if err != nil {
				return err
			}
			hdr.Name = rel
			if d.IsDir() {
				hdr.Name += "/"
			}

			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if fi.Mode().IsRegular() {
				f, err := os.Open(p)
				if err != nil {
					return err
				}
				_, err = io.Copy(tw, f)
				f.Close()
				if err != nil {
					return err
				}
			}
			return nil
		})
		if walkErr != nil {
			pw.CloseWithError(walkErr)
			return
		}
		if err := tw.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	return pr, nil
}

// =============================================================================
// Dockerignore
// =============================================================================

type ignoreRule struct {
	pattern string
	negate  bool
}

// readDockerignore parses the ignore file if present. Blank lines and #
// comments are skipped.
func readDockerignore(path string) ([]ignoreRule, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrContextUnreadable, err)
	}
	defer f.Close()

	var rules []ignoreRule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule := ignoreRule{pattern: line}
		if strings.HasPrefix(line, "!") {
			rule.negate = true
			rule.pattern = strings.TrimSpace(line[1:])
		}
		rule.pattern = strings.TrimSuffix(strings.TrimPrefix(rule.pattern, "/"), "/")
		if rule.pattern != "" {
			rules = append(rules, rule)
		}
	}
	return rules, scanner.Err()
}

// excluded applies the rules to a slash-separated relative path. The last
// matching rule decides.
func excluded(rules []ignoreRule, rel string) bool {
	skip := false
	for _, r := range rules {
		if matchPattern(r.pattern, rel) {
			skip = !r.negate
		}
	}
	return skip
}

// matchPattern reports whether the pattern matches rel itself or any parent
// of rel, so directory patterns exclude their contents.
func matchPattern(pattern, rel string) bool {
	if ok, _ := path.Match(pattern, rel); ok {
		return true
	}
	for parent := path.Dir(rel); parent != "." && parent != "/"; parent = path.Dir(parent) {
		if ok, _ := path.Match(pattern, parent); ok {
			return true
		}
	}
	return false
}
