package onnx

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var (
	pathOnce sync.Once
	libPath  string
)

// LibPath resolves the ONNX Runtime shared library once.
func LibPath(configured string, log *zap.Logger) string {
	pathOnce.Do(func() {
		libPath = resolve(configured, os.Getenv("ONNXRUNTIME_LIB"), candidates(runtime.GOOS), fileExists)
		if libPath == "" {
			log.Error("ONNX Runtime library path could not be determined for this OS", zap.String("os", runtime.GOOS))
		} else {
			log.Info("Using ONNX Runtime library", zap.String("path", libPath))
		}
	})
	return libPath
}

func resolve(configured, env string, candidates []string, exists func(string) bool) string {
	if configured != "" {
		return configured
	}
	if env != "" {
		return env
	}
	for _, p := range candidates {
		if exists(p) {
			return p
		}
	}
	return ""
}

func candidates(goos string) []string {
	switch goos {
	case "linux":
		return []string{
			filepath.Join("onnxlibs", "libonnxruntime.so"),
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
			"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
		}
	case "darwin":
		return []string{
			filepath.Join("onnxlibs", "libonnxruntime.dylib"),
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
		}
	case "windows":
		return []string{filepath.Join("onnxlibs", "onnxruntime.dll"), "onnxruntime.dll"}
	default:
		return nil
	}
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Init points onnxruntime_go at the shared library and creates the environment.
// The returned func destroys it.
func Init(configured string, log *zap.Logger) (func(), error) {
	path := LibPath(configured, log)
	if path == "" {
		return nil, errors.New("ONNX Runtime library not found; set libonnx or ONNXRUNTIME_LIB")
	}
	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, err
	}
	return func() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Warn("Failed to destroy ONNX Runtime environment", zap.Error(err))
		}
	}, nil
}
