// Package embedding wraps a local sentence-embedding ONNX model behind
// the opaque embed(text) -> vector interface internal/ingest and
// internal/search depend on. The model and tokenizer are data files on
// disk; this package treats their internal architecture (attention
// heads, merge rules, and so on) as none of its business.
package embedding

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/lsj5031/remi/internal/vector"
)

// Pooling selects how per-token hidden states collapse into one vector.
type Pooling string

const (
	PoolingMean Pooling = "mean"
	PoolingCLS  Pooling = "cls"
)

// Config describes where to find the model and how to run it.
type Config struct {
	ModelDir string

	// Pooling defaults to PoolingMean when empty.
	Pooling Pooling

	// QueryPrefix is prepended to query-side text only, for models
	// trained with an asymmetric query/document instruction prefix.
	QueryPrefix string

	// DylibPath overrides the onnxruntime shared library location; when
	// empty the ORT_DYLIB_PATH environment variable is used, falling
	// back to the runtime's platform default search path.
	DylibPath string
}

var (
	envOnce sync.Once
	envErr  error
)

// Embedder runs one ONNX session. It holds no internal mutex: every call
// site in this codebase reaches it from a single goroutine at a time
// (ingest's per-message embed loop runs after save_batch, outside the
// scan worker pool; search computes exactly one query vector per call).
type Embedder struct {
	tokenizer *tokenizer
	session   *ort.DynamicAdvancedSession
	pooling   Pooling
	prefix    string

	// hasTokenType records whether the model graph accepts a
	// token_type_ids input; some sentence-embedding exports omit it.
	hasTokenType bool
}

// New loads tokenizer.json and model.onnx from cfg.ModelDir and
// initializes the shared ONNX runtime environment (once per process).
func New(cfg Config) (*Embedder, error) {
	modelPath := filepath.Join(cfg.ModelDir, "model.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("embedding: model.onnx not found in %s: %w", cfg.ModelDir, err)
	}

	tok, err := loadTokenizer(cfg.ModelDir)
	if err != nil {
		return nil, err
	}

	envOnce.Do(func() {
		dylib := cfg.DylibPath
		if dylib == "" {
			dylib = os.Getenv("ORT_DYLIB_PATH")
		}
		if dylib != "" {
			ort.SetSharedLibraryPath(dylib)
		}
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return nil, fmt.Errorf("embedding: initialize onnxruntime: %w", envErr)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{"last_hidden_state"}, nil)
	hasTokenType := true
	if err != nil {
		inputNames = inputNames[:2]
		hasTokenType = false
		session, err = ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{"last_hidden_state"}, nil)
		if err != nil {
			return nil, fmt.Errorf("embedding: create session: %w", err)
		}
	}

	pooling := cfg.Pooling
	if pooling == "" {
		pooling = PoolingMean
	}

	return &Embedder{
		tokenizer:    tok,
		session:      session,
		pooling:      pooling,
		prefix:       cfg.QueryPrefix,
		hasTokenType: hasTokenType,
	}, nil
}

// Close releases the ONNX session. The shared runtime environment itself
// is process-lifetime and is never torn down.
func (e *Embedder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}

// Embed satisfies ingest.Embedder: the document-side embedding path, no
// query prefix applied.
func (e *Embedder) Embed(ctx context.Context, text string) ([]byte, error) {
	return e.embed(text, false)
}

// EmbedQuery satisfies search.QueryEmbedder: the query-side path, which
// prepends Config.QueryPrefix when one is configured.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]byte, error) {
	return e.embed(text, true)
}

func (e *Embedder) embed(text string, isQuery bool) ([]byte, error) {
	if isQuery && e.prefix != "" {
		text = e.prefix + text
	}

	ids, attentionMask, tokenTypeIDs := e.tokenizer.encode(text)
	seqLen := int64(len(ids))
	if seqLen == 0 {
		return nil, fmt.Errorf("embedding: empty token sequence")
	}

	shape := ort.NewShape(1, seqLen)
	inputIDsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("embedding: input_ids tensor: %w", err)
	}
	defer inputIDsTensor.Destroy()

	attnTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("embedding: attention_mask tensor: %w", err)
	}
	defer attnTensor.Destroy()

	inputs := []ort.Value{inputIDsTensor, attnTensor}
	if e.hasTokenType {
		typeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
		if err != nil {
			return nil, fmt.Errorf("embedding: token_type_ids tensor: %w", err)
		}
		defer typeTensor.Destroy()
		inputs = append(inputs, typeTensor)
	}

	// A nil entry asks the dynamic session to allocate the output tensor
	// itself, since the hidden size varies by model and is not known
	// ahead of the first run.
	outputs := make([]ort.Value, 1)
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("embedding: run session: %w", err)
	}
	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("embedding: unexpected output tensor type")
	}
	defer outTensor.Destroy()

	data := outTensor.GetData()
	shapeOut := outTensor.GetShape()
	seq := int(shapeOut[1])
	hiddenSize := int(shapeOut[2])

	pooled := pool(data, attentionMask, seq, hiddenSize, e.pooling)
	normalize(pooled)
	return vector.Encode(pooled), nil
}

func pool(data []float32, attentionMask []int64, seq, hiddenSize int, mode Pooling) []float32 {
	out := make([]float32, hiddenSize)
	if mode == PoolingCLS {
		copy(out, data[:hiddenSize])
		return out
	}

	var count float32
	for i := 0; i < seq; i++ {
		if attentionMask[i] == 0 {
			continue
		}
		base := i * hiddenSize
		for j := 0; j < hiddenSize; j++ {
			out[j] += data[base+j]
		}
		count++
	}
	if count > 0 {
		for j := range out {
			out[j] /= count
		}
	}
	return out
}

func normalize(v []float32) {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	norm := math.Sqrt(sumSq)
	if norm <= 1e-6 {
		return
	}
	for i, f := range v {
		v[i] = float32(float64(f) / norm)
	}
}
