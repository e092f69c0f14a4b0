package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/xonecas/niffler/internal/mcp"
)

const defaultMaxReadSize = 256 * 1024 // 256 KiB

// ReadArgs represents arguments to the read tool.
type ReadArgs struct {
	Path      string `json:"path"`
	Encoding  string `json:"encoding,omitempty"` // auto, utf-8, utf-16, utf-32, ascii, latin1
	MaxSize   int    `json:"maxSize,omitempty"`
	LineRange string `json:"linerange,omitempty"` // "a-b", "a,b", "[a,b]", "b'[a,b]'"
}

// ReadResult is the structured result of a successful read.
type ReadResult struct {
	Content    string    `json:"content"`
	Path       string    `json:"path"`
	Size       int       `json:"size"`
	Encoding   string    `json:"encoding"`
	Modified   time.Time `json:"modified"`
	TotalLines int       `json:"totalLines"`
	LinesRead  int       `json:"linesRead"`
	StartLine  int       `json:"startLine"`
	EndLine    int       `json:"endLine"`
}

func NewReadTool() mcp.Tool {
	return mcp.Tool{
		Name: "read",
		Description: `Read a file. encoding may be "auto" (BOM + ASCII detection) or one of utf-8, utf-16, utf-32, ascii, latin1.
If the file exceeds maxSize and no linerange is given, the read fails with a suggestion to pass linerange. Content is prefixed with 1-indexed line numbers.`,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path":      {"type": "string", "description": "Path to the file to read"},
				"encoding":  {"type": "string", "enum": ["auto", "utf-8", "utf-16", "utf-32", "ascii", "latin1"]},
				"maxSize":   {"type": "integer", "description": "Maximum bytes to read (default 262144)"},
				"linerange": {"type": "string", "description": "1-indexed line range, e.g. \"10-40\""}
			},
			"required": ["path"]
		}`),
		Kind: mcp.KindBuiltin,
	}
}

// ReadHandler handles read tool calls.
type ReadHandler struct{}

func NewReadHandler() *ReadHandler { return &ReadHandler{} }

func (h *ReadHandler) Handle(_ context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
	var args ReadArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return toolError("Invalid arguments: %v", err), nil
	}
	if args.Path == "" {
		return toolError("path cannot be empty"), nil
	}

	absPath, err := validatePath(args.Path)
	if err != nil {
		return toolError("%v", err), nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return toolError("failed to stat file: %v", err), nil
	}
	if info.IsDir() {
		return toolError("%s is a directory, not a file", args.Path), nil
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return toolError("failed to read file: %v", err), nil
	}

	maxSize := args.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxReadSize
	}

	encoding := args.Encoding
	if encoding == "" {
		encoding = "auto"
	}
	decoded, detected, err := decodeBytes(raw, encoding)
	if err != nil {
		return toolError("%v", err), nil
	}

	lines := strings.Split(decoded, "\n")
	totalLines := len(lines)

	if args.LineRange == "" {
		if len(raw) > maxSize {
			return toolError("file is %d bytes, exceeding maxSize %d; pass linerange to read a slice", len(raw), maxSize), nil
		}
		return toolJSON(ReadResult{
			Content:    numberLines(lines, 1),
			Path:       args.Path,
			Size:       len(raw),
			Encoding:   detected,
			Modified:   info.ModTime(),
			TotalLines: totalLines,
			LinesRead:  totalLines,
			StartLine:  1,
			EndLine:    totalLines,
		}), nil
	}

	start, end, err := parseReadLineRange(args.LineRange, totalLines)
	if err != nil {
		return toolError("%v", err), nil
	}
	selected := strings.Join(lines[start-1:end], "\n")
	if len(selected) > maxSize {
		return toolError("selected range is %d bytes, exceeding maxSize %d", len(selected), maxSize), nil
	}

	return toolJSON(ReadResult{
		Content:    numberLines(lines[start-1:end], start),
		Path:       args.Path,
		Size:       len(raw),
		Encoding:   detected,
		Modified:   info.ModTime(),
		TotalLines: totalLines,
		LinesRead:  end - start + 1,
		StartLine:  start,
		EndLine:    end,
	}), nil
}

func numberLines(lines []string, startLine int) string {
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%d: %s\n", startLine+i, line)
	}
	return b.String()
}

// decodeBytes converts raw bytes to a UTF-8 string per the requested
// encoding, auto-detecting via BOM or ASCII-ness when encoding is "auto".
func decodeBytes(raw []byte, encoding string) (string, string, error) {
	if encoding == "auto" {
		encoding = detectEncoding(raw)
	}
	switch encoding {
	case "utf-8", "ascii", "latin1":
		if encoding == "latin1" {
			return decodeLatin1(raw), encoding, nil
		}
		return string(raw), encoding, nil
	case "utf-16":
		return decodeUTF16(raw), encoding, nil
	case "utf-32":
		return decodeUTF32(raw), encoding, nil
	default:
		return "", "", fmt.Errorf("unsupported encoding %q", encoding)
	}
}

func detectEncoding(raw []byte) string {
	switch {
	case len(raw) >= 4 && raw[0] == 0xFF && raw[1] == 0xFE && raw[2] == 0x00 && raw[3] == 0x00:
		return "utf-32"
	case len(raw) >= 4 && raw[0] == 0x00 && raw[1] == 0x00 && raw[2] == 0xFE && raw[3] == 0xFF:
		return "utf-32"
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE:
		return "utf-16"
	case len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF:
		return "utf-16"
	case len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF:
		return "utf-8"
	case isASCII(raw):
		return "ascii"
	default:
		return "utf-8"
	}
}

func isASCII(raw []byte) bool {
	for _, b := range raw {
		if b > 0x7F {
			return false
		}
	}
	return true
}

func decodeLatin1(raw []byte) string {
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}

func decodeUTF16(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE {
		raw = raw[2:]
	} else if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		raw = raw[2:]
		for i := 0; i+1 < len(raw); i += 2 {
			raw[i], raw[i+1] = raw[i+1], raw[i]
		}
	}
	u16 := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		u16 = append(u16, uint16(raw[i])|uint16(raw[i+1])<<8)
	}
	return string(utf16.Decode(u16))
}

func decodeUTF32(raw []byte) string {
	if len(raw) >= 4 {
		raw = raw[4:] // skip BOM, byte order assumed LE per detectEncoding's first branch
	}
	runes := make([]rune, 0, len(raw)/4)
	for i := 0; i+3 < len(raw); i += 4 {
		r := uint32(raw[i]) | uint32(raw[i+1])<<8 | uint32(raw[i+2])<<16 | uint32(raw[i+3])<<24
		runes = append(runes, rune(r))
	}
	return string(runes)
}

var lineRangeBracket = regexp.MustCompile(`^\s*(?:b)?'?\[?\s*(\d+)\s*[,\-]\s*(\d+)\s*\]?'?\s*$`)

// parseReadLineRange accepts "a-b", "a,b", "[a,b]", and "b'[a,b]'" forms,
// clamping to [1, totalLines].
func parseReadLineRange(r string, totalLines int) (start, end int, err error) {
	m := lineRangeBracket.FindStringSubmatch(r)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid linerange %q", r)
	}
	start, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid linerange %q: %w", r, err)
	}
	end, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid linerange %q: %w", r, err)
	}
	if totalLines == 0 {
		return 0, 0, fmt.Errorf("file is empty")
	}
	if start < 1 {
		start = 1
	}
	if end > totalLines {
		end = totalLines
	}
	if start > end {
		return 0, 0, fmt.Errorf("invalid linerange %q: start after end", r)
	}
	return start, end, nil
}
