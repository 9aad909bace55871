package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xela07ax/toolgate/internal/infra"
)

// FilesAdapter обслуживает files.* инструменты. Все чтения заперты внутри
// BaseDir: выход из корня через ".." или абсолютный путь отклоняется
// до обращения к диску.
type FilesAdapter struct {
	baseDir  string
	maxChars int
}

func NewFilesAdapter(cfg infra.FilesAdapterConfig) (*FilesAdapter, error) {
	abs, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("bad files base dir: %w", err)
	}
	return &FilesAdapter{baseDir: abs, maxChars: cfg.MaxChars}, nil
}

type filesReadArgs struct {
	Path     string `json:"path"`
	MaxChars int    `json:"max_chars,omitempty"`
}

func (a *FilesAdapter) Execute(ctx context.Context, capName string, args []byte) ([]byte, error) {
	switch capName {
	case "files.read":
		var in filesReadArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("bad files.read args: %w", err)
		}
		return a.readText(ctx, in)
	default:
		return nil, fmt.Errorf("capability %s is not served by the files adapter", capName)
	}
}

func (a *FilesAdapter) readText(ctx context.Context, in filesReadArgs) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fp, err := a.safeJoin(in.Path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fp)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", in.Path)
	}

	limit := a.maxChars
	if in.MaxChars > 0 && in.MaxChars < limit {
		limit = in.MaxChars
	}
	text := string(data)
	if len(text) > limit {
		text = text[:limit]
	}

	return json.Marshal(map[string]interface{}{
		"path":  in.Path,
		"text":  text,
		"chars": len(text),
	})
}

// safeJoin запрещает path traversal: итоговый путь обязан остаться под baseDir.
func (a *FilesAdapter) safeJoin(userPath string) (string, error) {
	p := filepath.Join(a.baseDir, userPath)
	if p != a.baseDir && !strings.HasPrefix(p, a.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", userPath)
	}
	return p, nil
}
