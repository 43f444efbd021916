// Package module loads the external flattening module with wazero.
package module

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/flatterer/web/internal/flatten"
	"github.com/flatterer/web/internal/telemetry"
)

// Export names of the module ABI.
const (
	ExportLoad    = "load"
	ExportAlloc   = "alloc"
	ExportFlatten = "flatten"
	ExportFree    = "dealloc"
)

var (
	// ErrNoLoadExport is returned when the module lacks a load function.
	ErrNoLoadExport = errors.New("module does not export load")
	// ErrNotLoaded is returned by Flatten before a successful Load.
	ErrNotLoaded = errors.New("module not loaded")
	// ErrNoFlattenABI is returned by Flatten when the module cannot
	// flatten documents.
	ErrNoFlattenABI = errors.New("module does not export the flatten ABI")
)

// Config holds engine settings.
type Config struct {
	// MemoryLimitPages caps module memory (64 KiB pages). Zero keeps the
	// wazero default.
	MemoryLimitPages uint32
}

// Engine owns one wazero runtime and at most one module instance.
type Engine struct {
	src Source
	cfg Config

	mu      sync.Mutex
	runtime wazero.Runtime
	mod     api.Module
	loaded  bool
	loadErr error
	loads   int
}

// New constructs an Engine for src. Nothing is read until Load.
func New(src Source, cfg Config) *Engine {
	return &Engine{src: src, cfg: cfg}
}

// Load fetches, instantiates and initialises the module by calling its
// load export. Only the first call does any work; later calls return the
// first outcome.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return e.loadErr
	}
	e.loaded = true
	e.loads++

	ctx, span := telemetry.Tracer("github.com/flatterer/web/internal/module").Start(ctx, "module.load")
	defer span.End()
	if e.src != nil {
		span.SetAttributes(attribute.String("flatterer.module", e.src.String()))
	}
	e.loadErr = e.load(ctx)
	if e.loadErr != nil {
		span.RecordError(e.loadErr)
		span.SetStatus(codes.Error, "module load failed")
		Logger().Warn("module load failed", zap.Stringer("source", e.src), zap.Error(e.loadErr))
	} else {
		Logger().Info("module loaded", zap.Stringer("source", e.src), zap.Bool("flatten", e.mod.ExportedFunction(ExportFlatten) != nil))
	}
	return e.loadErr
}

func (e *Engine) load(ctx context.Context) error {
	if e.src == nil {
		return errors.New("no module source configured")
	}
	bin, err := e.src.Bytes(ctx)
	if err != nil {
		return err
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if e.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		_ = rt.Close(ctx)
		return fmt.Errorf("compile module: %w", err)
	}
	Logger().Debug("module compiled",
		zap.Int("bytes", len(bin)),
		zap.Int("exports", len(compiled.ExportedFunctions())))

	modCfg := wazero.NewModuleConfig().
		WithName("flatterer").
		WithStartFunctions("_initialize").
		WithStdout(io.Discard).
		WithStderr(io.Discard)
	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		_ = rt.Close(ctx)
		return fmt.Errorf("instantiate failed: %w", err)
	}

	fn := mod.ExportedFunction(ExportLoad)
	if fn == nil {
		_ = rt.Close(ctx)
		return ErrNoLoadExport
	}
	if _, err := fn.Call(ctx); err != nil {
		_ = rt.Close(ctx)
		return fmt.Errorf("call %s: %w", ExportLoad, err)
	}

	e.runtime = rt
	e.mod = mod
	return nil
}

// Loads reports how many times the module was actually loaded.
func (e *Engine) Loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads
}

// Ready reports whether Load succeeded.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mod != nil
}

// CanFlatten reports whether the loaded module implements the flatten ABI.
func (e *Engine) CanFlatten() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mod != nil && e.flattenABI() == nil
}

func (e *Engine) flattenABI() error {
	if e.mod.ExportedFunction(ExportAlloc) == nil ||
		e.mod.ExportedFunction(ExportFlatten) == nil ||
		e.mod.Memory() == nil {
		return ErrNoFlattenABI
	}
	return nil
}

type flattenRequest struct {
	Options flatten.Options `json:"options"`
	Input   json.RawMessage `json:"input"`
}

type flattenError struct {
	Error string `json:"error"`
}

// Flatten implements flatten.Flattener by passing the document to the
// module. The request is {"options": ..., "input": <document>} and the
// module returns a packed (ptr<<32 | len) pointer to the JSON result.
func (e *Engine) Flatten(ctx context.Context, r io.Reader, opts flatten.Options) (*flatten.Result, error) {
	input, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if opts.JSONStream {
		input, err = streamToArray(input)
		if err != nil {
			return nil, err
		}
		opts.JSONStream = false
	}
	if !json.Valid(input) {
		return nil, errors.New("input is not valid JSON")
	}
	payload, err := json.Marshal(flattenRequest{Options: opts, Input: input})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mod == nil {
		return nil, ErrNotLoaded
	}
	if err := e.flattenABI(); err != nil {
		return nil, err
	}
	out, err := e.call(ctx, payload)
	if err != nil {
		return nil, err
	}

	var ferr flattenError
	if json.Unmarshal(out, &ferr) == nil && ferr.Error != "" {
		return nil, fmt.Errorf("module: %s", ferr.Error)
	}
	var res flatten.Result
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("decode module result: %w", err)
	}
	if len(res.Tables) == 0 {
		return nil, errors.New("module returned no tables")
	}
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("module result: %w", err)
	}
	return &res, nil
}

func (e *Engine) call(ctx context.Context, payload []byte) ([]byte, error) {
	mem := e.mod.Memory()
	allocated, err := e.mod.ExportedFunction(ExportAlloc).Call(ctx, uint64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", ExportAlloc, err)
	}
	ptr := uint32(allocated[0])
	if !mem.Write(ptr, payload) {
		return nil, fmt.Errorf("write request: out of range at %d (+%d)", ptr, len(payload))
	}

	results, err := e.mod.ExportedFunction(ExportFlatten).Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", ExportFlatten, err)
	}
	packed := results[0]
	outPtr, outLen := uint32(packed>>32), uint32(packed)
	view, ok := mem.Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("read result: out of range at %d (+%d)", outPtr, outLen)
	}
	out := append([]byte(nil), view...)

	if free := e.mod.ExportedFunction(ExportFree); free != nil {
		if _, err := free.Call(ctx, uint64(ptr), uint64(len(payload))); err != nil {
			Logger().Debug("dealloc failed", zap.Error(err))
		}
	}
	return out, nil
}

// Close releases the runtime.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime == nil {
		return nil
	}
	err := e.runtime.Close(ctx)
	e.runtime = nil
	e.mod = nil
	return err
}

func streamToArray(input []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	var items []json.RawMessage
	for {
		var item json.RawMessage
		if err := dec.Decode(&item); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read JSON stream: %w", err)
		}
		items = append(items, item)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return json.Marshal(items)
}
