package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/basekick-labs/fmilog/internal/export"
	"github.com/basekick-labs/fmilog/internal/ingest"
	"github.com/basekick-labs/fmilog/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const mimeMsgPack = "application/msgpack"

var errPayloadTooLarge = errors.New("decompressed payload too large")

// ParseHandler parses event logs posted in the request body
type ParseHandler struct {
	maxPayloadSize int64
	maxLineSize    int
	policy         ingest.DuplicatePolicy
	logger         zerolog.Logger
}

// ParseHandlerConfig holds parse handler settings
type ParseHandlerConfig struct {
	MaxPayloadSize int64
	MaxLineSize    int
	Duplicates     ingest.DuplicatePolicy
}

// NewParseHandler creates a new parse handler
func NewParseHandler(cfg ParseHandlerConfig, logger zerolog.Logger) *ParseHandler {
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = ingest.DefaultMaxLineSize
	}
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = DefaultServerConfig().MaxPayloadSize
	}
	return &ParseHandler{
		maxPayloadSize: cfg.MaxPayloadSize,
		maxLineSize:    cfg.MaxLineSize,
		policy:         cfg.Duplicates,
		logger:         logger.With().Str("component", "parse-handler").Logger(),
	}
}

// RegisterRoutes registers the parse endpoints
func (h *ParseHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/parse", h.handleParse)
	app.Post("/api/v1/header", h.handleHeader)
}

// ColumnInfo describes one declared variable
type ColumnInfo struct {
	Name string `json:"name" msgpack:"name"`
	Type string `json:"type" msgpack:"type"`
}

// ParseResponse is the MessagePack body of a successful parse
type ParseResponse struct {
	Header []ColumnInfo         `msgpack:"header"`
	Events []export.EventRecord `msgpack:"events"`
	Count  int                  `msgpack:"count"`
}

// jsonParseResponse keeps events as pre-encoded objects so key order and
// non-finite floats match the JSON Lines exporter.
type jsonParseResponse struct {
	Header []ColumnInfo      `json:"header"`
	Events []json.RawMessage `json:"events"`
	Count  int               `json:"count"`
}

func columnInfo(hdr *ingest.Header) []ColumnInfo {
	names := hdr.Names()
	cols := make([]ColumnInfo, 0, len(names))
	for _, name := range names {
		typ, _ := hdr.Type(name)
		cols = append(cols, ColumnInfo{Name: name, Type: typ.String()})
	}
	return cols
}

// handleParse parses the whole body and returns header and events
func (h *ParseHandler) handleParse(c *fiber.Ctx) error {
	reader, release, err := h.openReader(c)
	if err != nil {
		return h.errorResponse(c, err)
	}
	defer release()

	hdr := reader.ParsedHeader()
	names := hdr.Names()
	wantMsgPack := strings.Contains(c.Get(fiber.HeaderAccept), mimeMsgPack)

	var (
		records []export.EventRecord
		objects []json.RawMessage
	)
	for event, err := range reader.All() {
		if err != nil {
			return h.errorResponse(c, err)
		}
		if wantMsgPack {
			records = append(records, export.NewEventRecord(event))
		} else {
			objects = append(objects, export.AppendEventJSON(nil, names, event))
		}
	}

	count := len(records) + len(objects)
	metrics.Get().IncEventsParsed(int64(count))

	h.logger.Debug().
		Int("variables", hdr.Len()).
		Int("events", count).
		Bool("msgpack", wantMsgPack).
		Msg("Parsed event log")

	if wantMsgPack {
		if records == nil {
			records = []export.EventRecord{}
		}
		body, err := msgpack.Marshal(ParseResponse{
			Header: columnInfo(hdr),
			Events: records,
			Count:  count,
		})
		if err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		c.Set(fiber.HeaderContentType, mimeMsgPack)
		return c.Send(body)
	}

	if objects == nil {
		objects = []json.RawMessage{}
	}
	return c.JSON(jsonParseResponse{
		Header: columnInfo(hdr),
		Events: objects,
		Count:  count,
	})
}

// handleHeader parses only the two header lines
func (h *ParseHandler) handleHeader(c *fiber.Ctx) error {
	reader, release, err := h.openReader(c)
	if err != nil {
		return h.errorResponse(c, err)
	}
	defer release()

	hdr := reader.ParsedHeader()
	return c.JSON(fiber.Map{
		"header":    columnInfo(hdr),
		"variables": hdr.Len(),
	})
}

// openReader decodes the request body and reads the header. The returned
// release func must be called once the reader is no longer used.
func (h *ParseHandler) openReader(c *fiber.Ctx) (*ingest.Reader, func(), error) {
	// Raw body: Content-Encoding is handled here, not by fasthttp
	payload := c.Request().Body()
	if len(payload) == 0 {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "Empty payload")
	}

	m := metrics.Get()
	m.IncLogsOpened()
	m.IncBytesRead(int64(len(payload)))

	mode, err := compressionMode(c.Get(fiber.HeaderContentEncoding))
	if err != nil {
		return nil, nil, fiber.NewError(fiber.StatusUnsupportedMediaType, err.Error())
	}

	body, release, err := ingest.Decompress(bytes.NewReader(payload), mode)
	if err != nil {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	limited := &limitReader{r: body, remaining: h.maxPayloadSize}

	policy := h.policy
	if q := c.Query("duplicate_names"); q != "" {
		if policy, err = ingest.ParseDuplicatePolicy(q); err != nil {
			release()
			return nil, nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}

	reader, err := ingest.NewReader(
		ingest.NewLineSource(limited, h.maxLineSize),
		ingest.WithDuplicatePolicy(policy),
		ingest.WithLogger(h.logger),
	)
	if err != nil {
		release()
		return nil, nil, err
	}
	return reader, release, nil
}

func compressionMode(encoding string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return ingest.CompressionNone, nil
	case "gzip", "x-gzip":
		return ingest.CompressionGzip, nil
	case "zstd":
		return ingest.CompressionZstd, nil
	default:
		return "", fmt.Errorf("unsupported Content-Encoding %q", encoding)
	}
}

// errorResponse maps parse failures to 400 with kind and line
func (h *ParseHandler) errorResponse(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	if errors.Is(err, errPayloadTooLarge) {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": fmt.Sprintf("Payload too large (max %d bytes)", h.maxPayloadSize),
		})
	}

	kind := ingest.Kind(err)
	metrics.Get().IncParseError(kind)

	h.logger.Debug().Err(err).Str("kind", kind).Msg("Rejected event log")

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
		"kind":  kind,
		"line":  ingest.Line(err),
	})
}

// limitReader fails once more than remaining bytes are read, guarding
// against decompression bombs.
type limitReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		// Allow a clean EOF exactly at the limit
		var probe [1]byte
		n, err := l.r.Read(probe[:])
		if n > 0 {
			return 0, errPayloadTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
