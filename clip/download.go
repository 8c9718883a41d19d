package clip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/drawduel/clipscore/config"
)

// EnsureFiles downloads any missing model or tokenizer file from cfg.ModelUrl.
func EnsureFiles(ctx context.Context, cfg config.Config, client *http.Client, log *zap.Logger) error {
	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		return fmt.Errorf("failed to create model dir: %w", err)
	}

	files := map[string]string{
		cfg.ModelFileName:  "onnx/" + cfg.ModelFileName,
		cfg.VocabFileName:  cfg.VocabFileName,
		cfg.MergesFileName: cfg.MergesFileName,
	}
	for name, remote := range files {
		local := filepath.Join(cfg.ModelDir, name)
		if _, err := os.Stat(local); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if cfg.ModelUrl == "" {
			return fmt.Errorf("%s is missing and no model_url is configured", local)
		}

		url := strings.TrimRight(cfg.ModelUrl, "/") + "/" + remote
		log.Info("Downloading model file", zap.String("url", url), zap.String("path", local))
		if err := download(ctx, client, url, local); err != nil {
			return fmt.Errorf("failed to download %s: %w", name, err)
		}
	}
	return nil
}

func download(ctx context.Context, client *http.Client, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
