// Package agent parses agent definition files used by the task tool to
// construct restricted child conversations.
package agent

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Definition is a named tool whitelist and system prompt parsed from a
// markdown agent file.
type Definition struct {
	Name         string
	Description  string
	AllowedTools map[string]bool
	SystemPrompt string
}

// Allows reports whether the named tool is in the agent's whitelist. The
// task tool is always excluded regardless of what the file lists, since an
// agent that could spawn further agents would have unbounded recursion.
func (d *Definition) Allows(toolName string) bool {
	if toolName == "task" {
		return false
	}
	return d.AllowedTools[toolName]
}

const (
	sectionNone = iota
	sectionDescription
	sectionAllowedTools
	sectionSystemPrompt
)

// Parse reads an agent definition from markdown with three required
// top-level sections: Description, Allowed Tools, System Prompt. Section
// headers may be any heading level ("#", "##", ...); matching is
// case-insensitive on the heading text.
func Parse(name string, data []byte) (*Definition, error) {
	def := &Definition{Name: name, AllowedTools: make(map[string]bool)}

	var descBuf, promptBuf strings.Builder
	var toolsBuf strings.Builder
	section := sectionNone
	seen := map[int]bool{}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if heading, ok := parseHeading(line); ok {
			switch strings.ToLower(heading) {
			case "description":
				section = sectionDescription
			case "allowed tools":
				section = sectionAllowedTools
			case "system prompt":
				section = sectionSystemPrompt
			default:
				section = sectionNone
			}
			seen[section] = true
			continue
		}
		switch section {
		case sectionDescription:
			descBuf.WriteString(line)
			descBuf.WriteByte('\n')
		case sectionAllowedTools:
			toolsBuf.WriteString(line)
			toolsBuf.WriteByte('\n')
		case sectionSystemPrompt:
			promptBuf.WriteString(line)
			promptBuf.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read agent definition: %w", err)
	}

	if !seen[sectionDescription] || !seen[sectionAllowedTools] || !seen[sectionSystemPrompt] {
		return nil, fmt.Errorf("agent definition %q missing required section(s): Description, Allowed Tools, System Prompt", name)
	}

	def.Description = strings.TrimSpace(descBuf.String())
	def.SystemPrompt = strings.TrimSpace(promptBuf.String())
	for _, tool := range parseToolList(toolsBuf.String()) {
		def.AllowedTools[tool] = true
	}
	if len(def.AllowedTools) == 0 {
		return nil, fmt.Errorf("agent definition %q lists no allowed tools", name)
	}
	return def, nil
}

// parseHeading reports whether line is a markdown heading and returns its
// trimmed text.
func parseHeading(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	trimmed = strings.TrimLeft(trimmed, "#")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

// parseToolList accepts either a comma-separated list or one tool per
// markdown bullet ("- toolName").
func parseToolList(block string) []string {
	var tools []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "-")
		line = strings.TrimPrefix(line, "*")
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			part = strings.Trim(part, "`")
			if part != "" {
				tools = append(tools, part)
			}
		}
	}
	return tools
}

// Store loads agent definitions from a directory of "<name>.md" files.
type Store struct {
	dir  string
	defs map[string]*Definition
}

// NewStore creates a Store rooted at dir. Definitions are loaded lazily and
// cached on first access.
func NewStore(dir string) *Store {
	return &Store{dir: dir, defs: make(map[string]*Definition)}
}

// Get returns the named agent's definition, parsing its file on first use.
func (s *Store) Get(name string) (*Definition, error) {
	if def, ok := s.defs[name]; ok {
		return def, nil
	}
	path := filepath.Join(s.dir, name+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load agent %q: %w", name, err)
	}
	def, err := Parse(name, data)
	if err != nil {
		return nil, err
	}
	s.defs[name] = def
	return def, nil
}

// List returns the names of all "*.md" agent definitions found in the
// store's directory, without parsing them.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	return names, nil
}
