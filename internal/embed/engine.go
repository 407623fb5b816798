// Package embed provides the BGE-small-en-v1.5 text embedding engine
// (spec.md §3, §5). Vectors are 384-dimensional and L2-normalized, so
// cosine similarity reduces to a dot product — the same contract
// internal/storage/sqlite's cosineSimilarity already assumes.
//
// Grounded on other_examples/0d940891_Tejas242-sift's embedder: CLS-pool +
// L2-normalize over an ONNX Runtime session, batched inference capped at a
// small thread count. Generalized here from a one-shot CLI embedder into a
// process-lifetime singleton behind a sync.Once, per design notes §9's
// "one-shot initializer guarded by a once-cell."
package embed

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// maxSeqLen bounds tokenized input length; BGE-small supports up to 512
	// but 256 halves the O(seqLen²) attention cost for the ~500-char
	// content_preview / search_content inputs this engine actually sees.
	maxSeqLen = 256
	// Dim is the output dimension of BGE-small-en-v1.5, matching spec.md
	// §3's "384-dimensional normalized float vectors."
	Dim = 384
	// defaultBatchSize keeps memory and latency bounded on low-end CPUs.
	defaultBatchSize = 4

	// QueryPrefix is prepended to search queries (never to stored
	// memories/skills) per BGE's asymmetric-retrieval recommendation.
	QueryPrefix = "Represent this sentence for searching relevant passages: "
)

// Engine wraps an ONNX session and tokenizer, safe for concurrent use by
// multiple goroutines (the session itself serializes Run calls).
type Engine struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	batchSize int
	sem       chan struct{}
}

var (
	once     sync.Once
	instance *Engine
	initErr  error
)

// Config points the engine at its model files and ONNX shared library.
type Config struct {
	ModelDir   string // must contain model.onnx, tokenizer.json
	OrtLibPath string // path to onnxruntime.so; "" uses the system default
	NumThreads int     // 0 = min(4, runtime.NumCPU())
}

// Get returns the process-wide Engine, initializing it on first call.
// Initialization failure is cached and returned to every subsequent
// caller rather than retried, matching SPEC_FULL.md §5.6's "no repeated
// retry storms."
func Get(cfg Config) (*Engine, error) {
	once.Do(func() {
		instance, initErr = newEngine(cfg)
	})
	return instance, initErr
}

func newEngine(cfg Config) (*Engine, error) {
	modelPath := filepath.Join(cfg.ModelDir, "model.onnx")
	tokenPath := filepath.Join(cfg.ModelDir, "tokenizer.json")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("embedding model not found at %s: %w", modelPath, err)
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return nil, fmt.Errorf("tokenizer not found at %s: %w", tokenPath, err)
	}

	if cfg.OrtLibPath != "" {
		ort.SetSharedLibraryPath(cfg.OrtLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}

	numThreads := cfg.NumThreads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
		return nil, fmt.Errorf("set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set inter threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	return &Engine{
		session:   session,
		tokenizer: tk,
		batchSize: defaultBatchSize,
		sem:       make(chan struct{}, numThreads),
	}, nil
}

// Close releases the ONNX session and tokenizer. Only meaningful at
// process shutdown since Get returns a shared singleton.
func (e *Engine) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.tokenizer != nil {
		e.tokenizer.Close()
	}
}

// Embed embeds a single document (content_preview/search_content text,
// never a search query — use EmbedQuery for that).
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedQuery embeds a search query with BGE's asymmetric-retrieval prefix.
func (e *Engine) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return e.Embed(ctx, QueryPrefix+query)
}

// EmbedBatch embeds many texts, chunked to batchSize, running CPU-bound
// inference on a bounded pool (sem) rather than the calling goroutine
// directly, so the cooperative scheduler isn't starved by ONNX's
// synchronous Run call (SPEC_FULL.md §5.6).
func (e *Engine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.runBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", i, end, err)
		}
		results = append(results, batch...)
	}
	return results, nil
}

func (e *Engine) runBatch(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.sem }()

	type result struct {
		vecs [][]float32
		err  error
	}
	done := make(chan result, 1)
	go func() {
		vecs, err := e.inferBatch(texts)
		done <- result{vecs, err}
	}()

	select {
	case r := <-done:
		return r.vecs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type encodedText struct {
	ids  []int64
	mask []int64
}

func (e *Engine) inferBatch(texts []string) ([][]float32, error) {
	batchSize := len(texts)

	all := make([]encodedText, batchSize)
	maxLen := 0
	for i, text := range texts {
		enc := e.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
		ids := enc.IDs
		if len(ids) > maxSeqLen {
			ids = ids[:maxSeqLen]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j, v := range ids {
			ids64[j] = int64(v)
			mask64[j] = 1
		}
		if len(enc.AttentionMask) >= len(ids) {
			for j := range ids64 {
				mask64[j] = int64(enc.AttentionMask[j])
			}
		}
		all[i] = encodedText{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("all inputs tokenized to zero length")
	}

	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatType := make([]int64, batchSize*maxLen)
	for i, enc := range all {
		copy(flatIDs[i*maxLen:], enc.ids)
		copy(flatMask[i*maxLen:], enc.mask)
	}
	shape := ort.NewShape(int64(batchSize), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attnMask.Destroy()

	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputIDs, attnMask, typeIDs}, outputs); err != nil {
		return nil, fmt.Errorf("onnxruntime run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want *Tensor[float32])")
	}
	hidden := hiddenTensor.GetData()
	seqLen := int(hiddenTensor.GetShape()[1])

	embeddings := make([][]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		vec := make([]float32, Dim)
		base := i * seqLen * Dim
		copy(vec, hidden[base:base+Dim])
		l2Normalize(vec)
		embeddings[i] = vec
	}
	return embeddings, nil
}

func l2Normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm < 1e-10 {
		return
	}
	inv := float32(1.0 / norm)
	for i := range v {
		v[i] *= inv
	}
}
