package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemTool manages files below Root. Paths that escape Root are refused.
type FilesystemTool struct {
	Root string
}

func NewFilesystemTool(root string) (*FilesystemTool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %q: %w", root, err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("create workspace %q: %w", absRoot, err)
	}
	return &FilesystemTool{Root: absRoot}, nil
}

func (f *FilesystemTool) Name() string {
	return "filesystem"
}

func (f *FilesystemTool) Description() string {
	return "Manage files in the local workspace: read, write, list, delete, and mkdir. Arguments: command, filename, content."
}

func (f *FilesystemTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write", "list", "delete", "mkdir"},
				"description": "The operation to perform",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "The name of the file or directory",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write (only for 'write' command)",
			},
		},
		"required": []string{"command", "filename"},
	}
}

func (f *FilesystemTool) resolve(name string) (string, error) {
	target := filepath.Join(f.Root, name)
	rel, err := filepath.Rel(f.Root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", Failf("unsafe path attempt: %s", name)
	}
	return target, nil
}

// Execute performs the command. Missing files and unknown commands are failures the
// planner can route around.
func (f *FilesystemTool) Execute(ctx context.Context, args Arguments) (string, error) {
	if err := args.Require("command"); err != nil {
		return "", err
	}
	name := args.String("filename")
	if name == "" && args.String("command") != "list" {
		return "", Failf("filename is required")
	}
	target, err := f.resolve(name)
	if err != nil {
		return "", err
	}

	switch cmd := args.String("command"); cmd {
	case "read":
		data, err := os.ReadFile(target)
		if err != nil {
			return "", fsFailure("read file", err)
		}
		return string(data), nil
	case "write":
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return "", fmt.Errorf("failed to create parent directory: %w", err)
		}
		if err := os.WriteFile(target, []byte(args.String("content")), 0644); err != nil {
			return "", fmt.Errorf("failed to write file: %w", err)
		}
		return fmt.Sprintf("Successfully wrote to %s", name), nil
	case "list":
		entries, err := os.ReadDir(target)
		if err != nil {
			return "", fsFailure("list directory", err)
		}
		if len(entries) == 0 {
			return "Directory is empty", nil
		}
		var sb strings.Builder
		for _, entry := range entries {
			kind := "file"
			if entry.IsDir() {
				kind = "dir"
			}
			fmt.Fprintf(&sb, "[%s] %s\n", kind, entry.Name())
		}
		return sb.String(), nil
	case "delete":
		if err := os.Remove(target); err != nil {
			return "", fsFailure("delete", err)
		}
		return fmt.Sprintf("Successfully deleted %s", name), nil
	case "mkdir":
		if err := os.MkdirAll(target, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
		return fmt.Sprintf("Successfully created directory %s", name), nil
	default:
		return "", Failf("invalid command %q: use 'read', 'write', 'list', 'delete', or 'mkdir'", cmd)
	}
}

func fsFailure(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return Failf("failed to %s: %v", op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
