package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/photoflow/internal/codec"
	"github.com/dunamismax/photoflow/internal/domain"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var (
	ErrUnsupportedSourceType = errors.New("unsupported source_type")
	ErrInvalidStepAction     = errors.New("invalid edit action")
	ErrSourceOutsideRoot     = errors.New("source path is outside the local input directory")
)

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	Edits      []domain.EditStep
}

type Output struct {
	StepID  string   `json:"step_id"`
	Action  string   `json:"action"`
	Format  string   `json:"format"`
	Path    string   `json:"path"`
	Bytes   int      `json:"bytes"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Stages  []string `json:"stages"`
	Digest  string   `json:"digest"`
	Success bool     `json:"success"`
}

type Result struct {
	SourceBytes  int
	SourcePixels int64
	Outputs      []Output
}

// Encoded is one edit step's encoded output, handed to an Emitter.
type Encoded struct {
	Data   []byte
	Format string
	Width  int
	Height int
	Digest string
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, step domain.EditStep, enc Encoded) (Output, error)
}

type Options struct {
	// MaxPixels bounds the decoded source; <= 0 disables the check.
	MaxPixels int64
	Observe   StageObserver
}

type Processor struct {
	fetcher     Fetcher
	decoder     codec.Decoder
	transformer Transformer
	emitter     Emitter
}

func NewProcessor(fetcher Fetcher, emitter Emitter, opts Options) (*Processor, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	return &Processor{
		fetcher:     fetcher,
		decoder:     codec.Decoder{MaxPixels: opts.MaxPixels},
		transformer: editTransformer{orchestrator: Orchestrator{Observe: opts.Observe}},
		emitter:     emitter,
	}, nil
}

// NewLocalProcessor reads sources from beneath inputDir and writes outputs
// under outputDir.
func NewLocalProcessor(inputDir, outputDir string, opts Options) (*Processor, error) {
	return NewProcessor(LocalFileFetcher{Root: inputDir}, LocalFileEmitter{OutputDir: outputDir}, opts)
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if len(req.Edits) == 0 {
		return Result{}, errors.New("edits must contain at least one step")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	source, err := p.decoder.Decode(sourceBytes)
	if err != nil {
		return Result{}, fmt.Errorf("decode stage: %w", err)
	}

	out := Result{
		SourceBytes:  len(sourceBytes),
		SourcePixels: source.PixelCount(),
		Outputs:      make([]Output, 0, len(req.Edits)),
	}
	for _, step := range req.Edits {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		edited, stages, err := p.transformer.Transform(ctx, source, step)
		if err != nil {
			return Result{}, fmt.Errorf("edit stage step=%s action=%s: %w", step.ID, step.Action, err)
		}

		format := codec.NormalizeFormat(step.Format)
		data, err := codec.Encode(edited, format, step.Quality)
		if err != nil {
			return Result{}, fmt.Errorf("encode stage step=%s format=%s: %w", step.ID, format, err)
		}

		written, err := p.emitter.Emit(ctx, req, step, Encoded{
			Data:   data,
			Format: format,
			Width:  edited.Width,
			Height: edited.Height,
			Digest: codec.Digest(data),
		})
		if err != nil {
			return Result{}, fmt.Errorf("emit stage step=%s action=%s: %w", step.ID, step.Action, err)
		}
		written.Stages = stages
		out.Outputs = append(out.Outputs, written)
	}

	return out, nil
}

// LocalFileFetcher reads local_file sources from beneath Root. An object key
// is either relative to Root or an absolute path inside it. Reads go through
// os.Root, so symlinks that leave Root are refused too. An empty Root turns
// local_file sources off.
type LocalFileFetcher struct {
	Root string
}

func (f LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	root, name, err := f.open(req.ObjectKey)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(name)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

// Stat checks that objectKey names an existing file beneath Root.
func (f LocalFileFetcher) Stat(objectKey string) (os.FileInfo, error) {
	root, name, err := f.open(objectKey)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	info, err := root.Stat(name)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrSourceOutsideRoot, objectKey)
	}
	return info, nil
}

// Rel maps objectKey onto a path relative to Root, rejecting anything that
// would resolve outside it.
func (f LocalFileFetcher) Rel(objectKey string) (string, error) {
	rootDir := strings.TrimSpace(f.Root)
	if rootDir == "" {
		return "", fmt.Errorf("%w: %s (no local input directory configured)", ErrUnsupportedSourceType, SourceTypeLocalFile)
	}

	key := strings.TrimSpace(objectKey)
	if filepath.IsAbs(key) {
		absRoot, err := filepath.Abs(rootDir)
		if err != nil {
			return "", fmt.Errorf("resolve local input directory: %w", err)
		}
		rel, err := filepath.Rel(absRoot, filepath.Clean(key))
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrSourceOutsideRoot, objectKey)
		}
		key = rel
	}
	if key == "" || !filepath.IsLocal(key) {
		return "", fmt.Errorf("%w: %s", ErrSourceOutsideRoot, objectKey)
	}
	return filepath.Clean(key), nil
}

func (f LocalFileFetcher) open(objectKey string) (*os.Root, string, error) {
	name, err := f.Rel(objectKey)
	if err != nil {
		return nil, "", err
	}
	root, err := os.OpenRoot(strings.TrimSpace(f.Root))
	if err != nil {
		return nil, "", fmt.Errorf("open local input directory: %w", err)
	}
	return root, name, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, step domain.EditStep, enc Encoded) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, errors.New("edit step id is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, outputFilename(step, enc.Format))
	if err := os.WriteFile(fullPath, enc.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return newOutput(step, enc, fullPath), nil
}

func newOutput(step domain.EditStep, enc Encoded, path string) Output {
	return Output{
		StepID:  step.ID,
		Action:  strings.ToLower(strings.TrimSpace(step.Action)),
		Format:  enc.Format,
		Path:    path,
		Bytes:   len(enc.Data),
		Width:   enc.Width,
		Height:  enc.Height,
		Digest:  enc.Digest,
		Success: true,
	}
}

func outputFilename(step domain.EditStep, format string) string {
	return fmt.Sprintf("%s.%s", sanitizePathToken(step.ID), codec.NormalizeFormat(format))
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
