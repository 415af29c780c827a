package agentloop

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	searchMaxResults  = 100
	searchMaxFileSize = 1 << 20
)

// RegisterCoreTools installs the built-in filesystem tools on reg. Every
// path parameter is sandbox-resolved before the executors run, so the
// executors operate on canonical absolute paths only.
func RegisterCoreTools(reg *Registry) error {
	for _, spec := range []ToolSpec{
		readFileSpec(),
		writeFileSpec(),
		listDirSpec(reg.Sandbox()),
		searchFilesSpec(reg.Sandbox()),
	} {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

func readFileSpec() ToolSpec {
	return ToolSpec{
		Name:        "read_file",
		Description: "Read a text file inside the working directory and return its content.",
		Params: []ParamSpec{
			{Name: "path", Type: ParamString, Description: "Path to the file, relative to the working directory.", Required: true, IsPath: true},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			path := args["path"].(string)
			info, err := os.Stat(path)
			if err != nil {
				return "", err
			}
			if info.IsDir() {
				return "", fmt.Errorf("%s is a directory, use list_dir instead", path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}

func writeFileSpec() ToolSpec {
	return ToolSpec{
		Name:        "write_file",
		Description: "Write content to a file inside the working directory, creating parent directories as needed. Overwrites existing content.",
		Params: []ParamSpec{
			{Name: "path", Type: ParamString, Description: "Path to write, relative to the working directory.", Required: true, IsPath: true},
			{Name: "content", Type: ParamString, Description: "The full file content.", Required: true},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			path := args["path"].(string)
			content := args["content"].(string)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	}
}

func listDirSpec(sandbox *Sandbox) ToolSpec {
	return ToolSpec{
		Name:        "list_dir",
		Description: "List the entries of a directory inside the working directory. Directories are suffixed with a slash.",
		Params: []ParamSpec{
			{Name: "path", Type: ParamString, Description: "Directory to list, relative to the working directory. Defaults to the working directory itself.", IsPath: true},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			path, _ := args["path"].(string)
			if path == "" {
				path = sandbox.Root()
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "(empty directory)", nil
			}
			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return strings.Join(names, "\n"), nil
		},
	}
}

// searchFilesSpec builds the regex search tool. The base path defaults to
// the sandbox root when the model omits it, which is why the sandbox is
// threaded in here rather than recovered from the argument pipeline.
func searchFilesSpec(sandbox *Sandbox) ToolSpec {
	return ToolSpec{
		Name:        "search_files",
		Description: "Search file contents under the working directory with a regular expression. Returns matching lines as path:line:text.",
		Params: []ParamSpec{
			{Name: "pattern", Type: ParamString, Description: "Regular expression to search for.", Required: true},
			{Name: "glob", Type: ParamString, Description: "Optional glob filter on relative file paths, e.g. \"**/*.go\"."},
			{Name: "path", Type: ParamString, Description: "Directory to search. Defaults to the working directory.", IsPath: true},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			pattern := args["pattern"].(string)
			re, err := regexp.Compile(pattern)
			if err != nil {
				return "", fmt.Errorf("invalid pattern: %w", err)
			}
			glob, _ := args["glob"].(string)
			if glob != "" {
				if !doublestar.ValidatePattern(glob) {
					return "", fmt.Errorf("invalid glob %q", glob)
				}
			}
			base, _ := args["path"].(string)
			if base == "" {
				base = sandbox.Root()
			}
			return searchFiles(ctx, sandbox.Root(), base, re, glob)
		},
	}
}

func searchFiles(ctx context.Context, root, base string, re *regexp.Regexp, glob string) (string, error) {
	var (
		lines     []string
		truncated bool
	)
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if glob != "" {
			if ok, _ := doublestar.Match(glob, rel); !ok {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil || info.Size() > searchMaxFileSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !isText(data) {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if !re.MatchString(line) {
				continue
			}
			if len(lines) >= searchMaxResults {
				truncated = true
				return filepath.SkipAll
			}
			lines = append(lines, fmt.Sprintf("%s:%d:%s", rel, i+1, line))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "no matches", nil
	}
	out := strings.Join(lines, "\n")
	if truncated {
		out += fmt.Sprintf("\n(stopped after %d matches)", searchMaxResults)
	}
	return out, nil
}

// isText is a cheap binary sniff: a NUL byte in the first chunk marks the
// file as binary.
func isText(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	for _, b := range data[:n] {
		if b == 0 {
			return false
		}
	}
	return true
}
