package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"meshapi/internal/mesh"
	"meshapi/internal/metrics"
	"meshapi/internal/model"
	"meshapi/internal/repository"
	"meshapi/internal/storage"
)

const (
	scratchPrefix = "temp_input_"
	exportPrefix  = "export_"
)

// ModelListResult is the service-level DTO for paginated model records.
type ModelListResult struct {
	Items []model.MeshFile `json:"data"`
	Total int              `json:"total"`
}

// ConversionResult carries a converted mesh back to the caller.
type ConversionResult struct {
	// Filename is the attachment name sent to the client, "model.<format>".
	Filename string
	// StoredAs is the export artifact key; it can be fetched again through Retrieve.
	StoredAs string
	Format   string
	Data     []byte
	Vertices int
	Faces    int
}

// MeshService defines the gateway use cases.
type MeshService interface {
	// Upload stores r under a generated "<id>.<ext>" name. The extension comes from
	// originalFilename and must be in the allowed set.
	Upload(ctx context.Context, r io.Reader, originalFilename string, size int64) (*model.MeshFile, error)

	// Retrieve opens a stored file. Names that are not plain stored keys are not found.
	Retrieve(ctx context.Context, filename string) (io.ReadCloser, storage.ObjectInfo, error)

	// Convert parses r as from and re-serializes it as to. size is the length of r,
	// or -1 when unknown. The transient input is removed before Convert returns.
	Convert(ctx context.Context, r io.Reader, originalFilename string, size int64, from, to string) (*ConversionResult, error)

	// List returns model records using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*ModelListResult, error)
}

// Options configures a MeshService.
type Options struct {
	// AllowedFormats are lowercase extensions. Empty means model.DefaultFormats.
	AllowedFormats []string
	// MaxUploadBytes rejects uploads whose declared size exceeds it. Zero disables the check.
	MaxUploadBytes int64
	Metrics        *metrics.Gateway
	Logger         *slog.Logger
}

type meshService struct {
	store   storage.Storage
	repo    repository.ModelRepository
	allowed map[string]bool
	maxSize int64
	metrics *metrics.Gateway
	logger  *slog.Logger
	tracer  trace.Tracer

	newID func() string
	now   func() time.Time
}

// NewMeshService constructs a new MeshService. A nil repo disables the model index.
func NewMeshService(store storage.Storage, repo repository.ModelRepository, opts Options) MeshService {
	if repo == nil {
		repo = repository.Noop{}
	}
	formats := opts.AllowedFormats
	if len(formats) == 0 {
		formats = model.DefaultFormats
	}
	allowed := make(map[string]bool, len(formats))
	for _, f := range formats {
		allowed[model.NormalizeFormat(f)] = true
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &meshService{
		store:   store,
		repo:    repo,
		allowed: allowed,
		maxSize: opts.MaxUploadBytes,
		metrics: opts.Metrics,
		logger:  logger.With("component", "mesh_service"),
		tracer:  otel.Tracer("meshapi/internal/service"),
		newID:   newID,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// newID returns 32 lowercase hex characters from a random UUID.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// baseName drops any client-supplied directory part, including Windows separators.
func baseName(filename string) string {
	return path.Base(strings.ReplaceAll(filename, `\`, "/"))
}

func (s *meshService) Upload(ctx context.Context, r io.Reader, originalFilename string, size int64) (*model.MeshFile, error) {
	if r == nil {
		return nil, invalid(MsgNoFilePart, ErrReaderNil)
	}
	name := baseName(originalFilename)
	ext := model.Ext(name)
	if ext == "" || !s.allowed[ext] {
		return nil, invalid(MsgNotAllowed, fmt.Errorf("%w: %q", ErrNotAllowed, name))
	}
	if s.maxSize > 0 && size > s.maxSize {
		return nil, &Error{Kind: KindTooLarge, Message: MsgTooLarge}
	}

	id := s.newID()
	key := id + "." + ext
	info, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        size,
		ContentType: model.ContentType(ext),
		Metadata: map[string]string{
			"original-filename": name,
		},
	})
	if err != nil {
		return nil, internal(fmt.Errorf("upload to storage: %w", err))
	}
	if info.Size == 0 && size > 0 {
		info.Size = size
	}

	f := &model.MeshFile{
		ID:        id,
		Filename:  key,
		Format:    ext,
		Kind:      model.KindUpload,
		Size:      info.Size,
		CreatedAt: s.now(),
	}
	s.index(ctx, f)
	s.metrics.ObserveUpload(ext, f.Size)
	s.logger.InfoContext(ctx, "mesh_uploaded",
		"filename", key,
		"original_filename", name,
		"size", humanize.IBytes(uint64(f.Size)),
	)
	return f, nil
}

func (s *meshService) Retrieve(ctx context.Context, filename string) (io.ReadCloser, storage.ObjectInfo, error) {
	ext := model.Ext(filename)
	if storage.ValidateKey(filename) != nil || !s.allowed[ext] {
		return nil, storage.ObjectInfo{}, notFound(fmt.Errorf("%w: %q", ErrNotFound, filename))
	}

	rc, info, err := s.store.Get(ctx, filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return nil, storage.ObjectInfo{}, notFound(err)
		}
		return nil, storage.ObjectInfo{}, internal(fmt.Errorf("get from storage: %w", err))
	}
	info.ContentType = model.ContentType(ext)
	return rc, info, nil
}

func (s *meshService) Convert(ctx context.Context, r io.Reader, originalFilename string, size int64, from, to string) (*ConversionResult, error) {
	from, to = model.NormalizeFormat(from), model.NormalizeFormat(to)
	if r == nil || from == "" || to == "" {
		return nil, invalid(MsgMissingInfo, ErrReaderNil)
	}
	if !s.allowed[from] || !s.allowed[to] || !mesh.CanRead(from) || !mesh.CanWrite(to) {
		s.metrics.ObserveConversion(from, to, metrics.ResultRejected)
		return nil, invalid(MsgUnsupportedFormat, fmt.Errorf("%w: %s to %s", ErrUnsupportedFormat, from, to))
	}
	if s.maxSize > 0 && size > s.maxSize {
		return nil, &Error{Kind: KindTooLarge, Message: MsgTooLarge}
	}

	ctx, span := s.tracer.Start(ctx, "MeshService.Convert", trace.WithAttributes(
		attribute.String("mesh.from", from),
		attribute.String("mesh.to", to),
	))
	defer span.End()

	res, err := s.convert(ctx, r, size, from, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveConversion(from, to, metrics.ResultFailed)
		s.logger.WarnContext(ctx, "mesh_conversion_failed",
			"original_filename", baseName(originalFilename),
			"from", from,
			"to", to,
			"error", err.Error(),
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("mesh.vertices", res.Vertices),
		attribute.Int("mesh.faces", res.Faces),
	)
	s.metrics.ObserveConversion(from, to, metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "mesh_converted",
		"original_filename", baseName(originalFilename),
		"from", from,
		"to", to,
		"stored_as", res.StoredAs,
		"vertices", res.Vertices,
		"faces", res.Faces,
		"size", humanize.IBytes(uint64(len(res.Data))),
	)
	return res, nil
}

func (s *meshService) convert(ctx context.Context, r io.Reader, size int64, from, to string) (*ConversionResult, error) {
	id := s.newID()

	scratch, err := storage.NewScratch(ctx, s.store, scratchPrefix+id+"."+from, r, size)
	if err != nil {
		return nil, internal(fmt.Errorf("store transient input: %w", err))
	}
	defer func() {
		if err := scratch.Release(ctx); err != nil {
			s.logger.ErrorContext(ctx, "transient_cleanup_failed", "key", scratch.Key(), "error", err.Error())
		}
	}()

	in, err := scratch.Open(ctx)
	if err != nil {
		return nil, internal(fmt.Errorf("open transient input: %w", err))
	}
	m, err := mesh.Load(in, from)
	_ = in.Close()
	if err != nil {
		return nil, processing(err)
	}

	var buf bytes.Buffer
	if _, err := mesh.Export(&buf, m, to); err != nil {
		return nil, processing(err)
	}

	key := exportPrefix + id + "." + to
	info, err := s.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), storage.PutObjectOptions{
		Size:        int64(buf.Len()),
		ContentType: model.ContentType(to),
	})
	if err != nil {
		return nil, internal(fmt.Errorf("store export: %w", err))
	}
	if info.Size == 0 {
		info.Size = int64(buf.Len())
	}

	s.index(ctx, &model.MeshFile{
		ID:        id,
		Filename:  key,
		Format:    to,
		Kind:      model.KindExport,
		Size:      info.Size,
		CreatedAt: s.now(),
	})

	return &ConversionResult{
		Filename: "model." + to,
		StoredAs: key,
		Format:   to,
		Data:     buf.Bytes(),
		Vertices: len(m.Vertices),
		Faces:    len(m.Faces),
	}, nil
}

// index records f. The artifact is already stored and retrievable, so failures are only logged.
func (s *meshService) index(ctx context.Context, f *model.MeshFile) {
	if _, err := s.repo.Create(ctx, f); err != nil {
		s.logger.WarnContext(ctx, "model_index_failed", "filename", f.Filename, "error", err.Error())
	}
}

// List returns paginated model records without exposing repository types.
func (s *meshService) List(ctx context.Context, limit, offset int) (*ModelListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, internal(fmt.Errorf("list models: %w", err))
	}
	return &ModelListResult{Items: res.Items, Total: res.Total}, nil
}
