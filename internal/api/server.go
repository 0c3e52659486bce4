package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/runrelay/runrelay/internal/runs"
	"github.com/runrelay/runrelay/internal/streams"
	"github.com/runrelay/runrelay/pkg/errors"
	"github.com/runrelay/runrelay/pkg/logger"
)

// ingest lines above this size are rejected by the scanner
const maxChunkSize = 1 << 20

func NewServer(cfg Config, log logger.Logger, runs runs.API, streams streamSource) Server {
	serveLog := log.With("api_http_server")

	fiberCfg := fiber.Config{
		ReadTimeout:             cfg.HTTP.ReadTimeout,
		WriteTimeout:            cfg.HTTP.WriteTimeout,
		IdleTimeout:             cfg.HTTP.IdleTimeout,
		DisableStartupMessage:   true,
		StreamRequestBody:       true,
		EnableTrustedProxyCheck: true,
		ProxyHeader:             cfg.Proxy.Header,
		TrustedProxies:          cfg.Proxy.Trusted,
		RequestMethods:          []string{fiber.MethodGet, fiber.MethodPost},
	}

	fiberCfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
		serveLog.Warn(errors.WrapFail(err, "handle http request"))
		return c.Status(http.StatusInternalServerError).Send(nil)
	}

	s := &server{
		runs:    runs,
		streams: streams,
		http:    fiber.New(fiberCfg),
		addr:    cfg.HTTP.Addr,
		log:     serveLog,
	}

	s.setupRoutes()

	return s
}

type server struct {
	runs    runs.API
	streams streamSource
	http    *fiber.App
	addr    string
	log     logger.Logger
}

func (s *server) Serve(ctx context.Context) error {
	errCh := make(chan error)
	go func() { errCh <- s.http.Listen(s.addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return errors.Error("serve context done")
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	var errs []error

	err := s.runs.Close(ctx)
	if err != nil {
		errs = append(errs, errors.WrapFail(err, "close runs api"))
	}

	err = s.http.ShutdownWithContext(ctx)
	if err != nil {
		errs = append(errs, errors.WrapFail(err, "shutdown http server"))
	}

	return errors.Collapse(errs)
}

func (s *server) setupRoutes() {
	// fiber's Get also registers a HEAD route, which panics because
	// RequestMethods is restricted to GET and POST; Add registers GET only.
	s.http.Add(fiber.MethodGet, "/machines", s.handleMachines)

	s.http.Post("/runs", s.handleCreateRun)
	s.http.Add(fiber.MethodGet, "/runs/:id", s.handleGetRun)
	s.http.Post("/runs/:id/start", s.handleStartRun)
	s.http.Post("/runs/:id/finish", s.handleFinishRun)

	s.http.Add(fiber.MethodGet, "/runs/:id/streams", s.handleListStreams)
	s.http.Post("/runs/:id/streams/:key", s.handleIngest)
	s.http.Add(fiber.MethodGet, "/runs/:id/streams/:key", s.handleSubscribe)
}

func (s *server) handleMachines(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(runs.Machines())
}

type createRunRequest struct {
	Task            string `json:"task"`
	Machine         string `json:"machine"`
	OOMRetryMachine string `json:"oom_retry_machine"`
}

func (s *server) handleCreateRun(c *fiber.Ctx) error {
	var req createRunRequest
	err := c.BodyParser(&req)
	if err != nil {
		s.log.Warn(errors.WrapFail(err, "unmarshal run payload"))
		return s.sendError(c, http.StatusBadRequest, "bad json")
	}

	id, err := s.runs.Create(c.Context(), req.Task, req.Machine, req.OOMRetryMachine)
	if errors.Is(err, runs.ErrBadMachine) || errors.Is(err, runs.ErrBadRetry) {
		return s.sendError(c, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return errors.WrapFail(err, "create run")
	}

	return c.Status(http.StatusCreated).JSON(map[string]string{"id": id})
}

func (s *server) handleGetRun(c *fiber.Ctx) error {
	run, err := s.runs.Find(c.Context(), c.Params("id"))
	if errors.Is(err, runs.ErrNotFound) {
		return s.sendError(c, http.StatusNotFound, "no such run")
	}
	if err != nil {
		return errors.WrapFail(err, "find run")
	}

	return c.Status(http.StatusOK).JSON(run)
}

func (s *server) handleStartRun(c *fiber.Ctx) error {
	err := s.runs.Start(c.Context(), c.Params("id"))
	if errors.Is(err, runs.ErrBadState) {
		return s.sendError(c, http.StatusConflict, "run is not pending")
	}
	if err != nil {
		return errors.WrapFail(err, "start run")
	}

	return c.Status(http.StatusOK).Send(nil)
}

type finishRunRequest struct {
	Failure *runs.Failure `json:"failure"`
}

func (s *server) handleFinishRun(c *fiber.Ctx) error {
	var req finishRunRequest
	if len(c.Body()) > 0 {
		err := c.BodyParser(&req)
		if err != nil {
			s.log.Warn(errors.WrapFail(err, "unmarshal finish payload"))
			return s.sendError(c, http.StatusBadRequest, "bad json")
		}
	}

	run, err := s.runs.Finish(c.Context(), c.Params("id"), req.Failure)
	if errors.Is(err, runs.ErrNotFound) {
		return s.sendError(c, http.StatusNotFound, "no such run")
	}
	if errors.Is(err, runs.ErrBadState) {
		return s.sendError(c, http.StatusConflict, "run is not executing")
	}
	if err != nil {
		return errors.WrapFail(err, "finish run")
	}

	return c.Status(http.StatusOK).JSON(run)
}

func (s *server) handleListStreams(c *fiber.Ctx) error {
	infos := s.streams.List(c.Context(), c.Params("id"))
	if infos == nil {
		infos = []streams.StreamInfo{}
	}
	return c.Status(http.StatusOK).JSON(infos)
}

// handleIngest is the fan-in side: the task process streams ND-JSON
// chunks in the request body. A clean EOF closes the stream; a broken
// connection leaves it open so the producer can resume.
func (s *server) handleIngest(c *fiber.Ctx) error {
	run, key := c.Params("id"), c.Params("key")

	owner, err := s.runs.Find(c.Context(), run)
	if errors.Is(err, runs.ErrNotFound) {
		return s.sendError(c, http.StatusNotFound, "no such run")
	}
	if err != nil {
		return errors.WrapFail(err, "find run")
	}
	if owner.Status.Terminal() {
		return s.sendError(c, http.StatusConflict, "run is finished")
	}

	err = s.streams.Register(c.Context(), run, key)
	if errors.Is(err, streams.ErrClosed) {
		return s.sendError(c, http.StatusConflict, "stream is closed")
	}
	if err != nil {
		return errors.WrapFail(err, "register stream")
	}

	var body io.Reader = c.Context().RequestBodyStream()
	if body == nil {
		body = bytes.NewReader(c.Body())
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64<<10), maxChunkSize)

	var last int64 = -1
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return s.sendError(c, http.StatusBadRequest, "chunk is not valid json")
		}

		data := make(json.RawMessage, len(line))
		copy(data, line)

		last, err = s.streams.Append(c.Context(), run, key, data)
		if errors.Is(err, streams.ErrClosed) {
			return s.sendError(c, http.StatusConflict, "stream is closed")
		}
		if err != nil {
			return errors.WrapFail(err, "append chunk")
		}
	}

	if scanner.Err() != nil {
		s.log.Warn(errors.WrapFailf(scanner.Err(), "read chunks of %s/%s", run, key))
		return nil
	}

	err = s.streams.Close(c.Context(), run, key)
	if err != nil && !errors.Is(err, streams.ErrClosed) {
		return errors.WrapFail(err, "close stream")
	}

	return c.Status(http.StatusOK).JSON(map[string]int64{"length": last + 1})
}

// handleSubscribe is the fan-out side: replay from the requested
// offset as SSE, then live tail until the stream closes.
func (s *server) handleSubscribe(c *fiber.Ctx) error {
	run, key := c.Params("id"), c.Params("key")
	from := int64(c.QueryInt("from", 0))

	ctx, cancel := context.WithCancel(context.Background())

	ch, err := s.streams.Subscribe(ctx, run, key, from)
	if errors.Is(err, streams.ErrUnknown) {
		cancel()
		return s.sendError(c, http.StatusNotFound, "no such stream")
	}
	if err != nil {
		cancel()
		return errors.WrapFail(err, "subscribe to stream")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		for chunk := range ch {
			err := writeChunkEvent(w, chunk)
			if err != nil {
				return
			}
		}

		_, _ = fmt.Fprint(w, "event: end\ndata: {}\n\n")
		_ = w.Flush()
	}))

	return nil
}

func writeChunkEvent(w *bufio.Writer, chunk streams.Chunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", chunk.Seq, payload)
	if err != nil {
		return err
	}
	return w.Flush()
}

func (s *server) sendError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(map[string]string{"status": "ERROR", "message": msg})
}
