package clip

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"slices"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/drawduel/clipscore/config"
)

const (
	inputIDsName      = "input_ids"
	attentionMaskName = "attention_mask"
	pixelValuesName   = "pixel_values"
	logitsName        = "logits_per_image"
)

var errNotLoaded = errors.New("model not initialized")

type session struct {
	session   *ort.AdvancedSession
	inputIDs  *ort.Tensor[int64]
	attention *ort.Tensor[int64]
	pixels    *ort.Tensor[float32]
	logits    *ort.Tensor[float32]
}

func (s *session) destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.inputIDs != nil {
		s.inputIDs.Destroy()
	}
	if s.attention != nil {
		s.attention.Destroy()
	}
	if s.pixels != nil {
		s.pixels.Destroy()
	}
	if s.logits != nil {
		s.logits.Destroy()
	}
}

// Model runs an exported CLIP graph through a pool of ONNX Runtime sessions.
type Model struct {
	tokenizer *Tokenizer
	pool      chan *session
	sessions  []*session
	log       *zap.Logger
}

// Load builds the tokenizer and cfg.PoolSize sessions. The ONNX Runtime
// environment must already be initialized.
func Load(cfg config.Config, log *zap.Logger) (*Model, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tok, err := LoadTokenizer(
		filepath.Join(cfg.ModelDir, cfg.VocabFileName),
		filepath.Join(cfg.ModelDir, cfg.MergesFileName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	onnxPath := filepath.Join(cfg.ModelDir, cfg.ModelFileName)
	inputs, outputs, err := ort.GetInputOutputInfo(onnxPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	inputNames, err := graphInputs(inputs, outputs)
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.Threads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.Threads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	m := &Model{
		tokenizer: tok,
		pool:      make(chan *session, cfg.PoolSize),
		log:       log,
	}
	for range cfg.PoolSize {
		s, err := newSession(onnxPath, inputNames, opts)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.sessions = append(m.sessions, s)
		m.pool <- s
	}

	log.Info("CLIP model loaded",
		zap.String("path", onnxPath),
		zap.Strings("inputs", inputNames),
		zap.Int("sessions", cfg.PoolSize),
	)
	return m, nil
}

// graphInputs checks the graph exposes what the scorer feeds and reads, and
// returns the input names in graph order.
func graphInputs(inputs, outputs []ort.InputOutputInfo) ([]string, error) {
	names := make([]string, 0, len(inputs))
	for _, in := range inputs {
		switch in.Name {
		case inputIDsName, attentionMaskName, pixelValuesName:
			names = append(names, in.Name)
		default:
			return nil, fmt.Errorf("unexpected model input %q", in.Name)
		}
	}
	for _, required := range []string{inputIDsName, pixelValuesName} {
		if !slices.Contains(names, required) {
			return nil, fmt.Errorf("model has no %q input", required)
		}
	}
	if !slices.ContainsFunc(outputs, func(o ort.InputOutputInfo) bool { return o.Name == logitsName }) {
		return nil, fmt.Errorf("model has no %q output", logitsName)
	}
	return names, nil
}

func newSession(onnxPath string, inputNames []string, opts *ort.SessionOptions) (*session, error) {
	s := &session{}
	var err error
	s.inputIDs, err = ort.NewEmptyTensor[int64](ort.NewShape(1, ContextLength))
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	s.attention, err = ort.NewEmptyTensor[int64](ort.NewShape(1, ContextLength))
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	s.pixels, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, ImageSize, ImageSize))
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	s.logits, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	values := make([]ort.Value, len(inputNames))
	for i, name := range inputNames {
		switch name {
		case inputIDsName:
			values[i] = s.inputIDs
		case attentionMaskName:
			values[i] = s.attention
		case pixelValuesName:
			values[i] = s.pixels
		}
	}

	s.session, err = ort.NewAdvancedSession(
		onnxPath,
		inputNames,
		[]string{logitsName},
		values,
		[]ort.Value{s.logits},
		opts,
	)
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}
	return s, nil
}

// Logit returns logits_per_image for img and topic.
func (m *Model) Logit(ctx context.Context, img image.Image, topic string) (float32, error) {
	if m == nil || m.pool == nil {
		return 0, errNotLoaded
	}
	ids, mask := m.tokenizer.Pad(topic)
	pixels := Preprocess(img)

	var s *session
	select {
	case s = <-m.pool:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	defer func() { m.pool <- s }()

	copy(s.inputIDs.GetData(), ids)
	copy(s.attention.GetData(), mask)
	copy(s.pixels.GetData(), pixels)
	if err := s.session.Run(); err != nil {
		return 0, fmt.Errorf("session run: %w", err)
	}
	return s.logits.GetData()[0], nil
}

func (m *Model) Ready(context.Context) error {
	if m == nil || len(m.sessions) == 0 {
		return errNotLoaded
	}
	return nil
}

// Close releases every session. The model must not be used afterwards.
func (m *Model) Close() {
	if m == nil {
		return
	}
	for _, s := range m.sessions {
		s.destroy()
	}
	m.sessions = nil
	m.pool = nil
}
