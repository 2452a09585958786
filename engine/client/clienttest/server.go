package clienttest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/compozy/workflowkit/engine/client"
	"github.com/compozy/workflowkit/engine/core"
)

// Server is an in-process workflow server used by tests.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	workflows   map[string]map[string]any
	handlers    map[string]client.Handler
	order       []string
	streams     map[string]*eventStream
	connects    map[string]int
	sent        map[string][]client.SendEventRequest
	cancels     map[string]int
	failStatus  int
	nextID      int
	runComplete func(name string, req client.RunRequest) client.Handler
}

type eventStream struct {
	events chan []byte
	closed bool
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &Server{
		workflows: make(map[string]map[string]any),
		handlers:  make(map[string]client.Handler),
		streams:   make(map[string]*eventStream),
		connects:  make(map[string]int),
		sent:      make(map[string][]client.SendEventRequest),
		cancels:   make(map[string]int),
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(func() {
		s.endAll()
		s.Close()
	})
	return s
}

func (s *Server) endAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.streams {
		if !st.closed {
			st.closed = true
			close(st.events)
		}
	}
}

// NewClient returns a client pointed at the server with fast retries.
func (s *Server) NewClient(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.New(client.Options{
		BaseURL:        s.URL,
		Timeout:        5 * time.Second,
		RetryCount:     1,
		RetryWait:      time.Millisecond,
		RetryMaxWait:   5 * time.Millisecond,
		ConnectRetries: 1,
		ConnectBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(s.failureMiddleware)
	r.GET("/workflows", s.listWorkflows)
	r.GET("/workflows/:name/representation", s.getGraph)
	r.POST("/workflows/:name/run", s.run(true))
	r.POST("/workflows/:name/run-nowait", s.run(false))
	r.GET("/handlers", s.listHandlers)
	r.GET("/handlers/:id", s.getHandler)
	r.POST("/handlers/:id/cancel", s.cancelHandler)
	r.POST("/events/:id", s.postEvent)
	r.GET("/events/:id", s.streamEvents)
	return r
}

// AddWorkflow registers a workflow definition.
func (s *Server) AddWorkflow(name string, graph map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[name] = graph
}

// RemoveWorkflow deletes a workflow definition.
func (s *Server) RemoveWorkflow(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, name)
}

// PutHandler inserts or replaces a handler record.
func (s *Server) PutHandler(h client.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[h.HandlerID]; !ok {
		s.order = append(s.order, h.HandlerID)
	}
	s.handlers[h.HandlerID] = h
}

// RemoveHandler deletes a handler record.
func (s *Server) RemoveHandler(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
}

func (s *Server) Handler(id string) (client.Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[id]
	return h, ok
}

// Complete marks a handler completed with result and ends its stream with a stop event.
func (s *Server) Complete(id string, result map[string]any) {
	stop := core.NewStopEvent(result)
	s.mu.Lock()
	h := s.handlers[id]
	h.Status = string(core.StatusCompleted)
	h.Result = stop
	h.CompletedAt = time.Now().UTC().Format(time.RFC3339Nano)
	s.handlers[id] = h
	s.mu.Unlock()
	s.Emit(id, stop)
	s.EndStream(id)
}

// Fail marks a handler failed and ends its stream with a stop event.
func (s *Server) Fail(id, message string) {
	s.mu.Lock()
	h := s.handlers[id]
	h.Status = string(core.StatusFailed)
	h.Error = message
	h.CompletedAt = time.Now().UTC().Format(time.RFC3339Nano)
	s.handlers[id] = h
	s.mu.Unlock()
	s.Emit(id, core.NewStopEvent(nil))
	s.EndStream(id)
}

// Emit queues an event on the handler's stream.
func (s *Server) Emit(id string, evt *core.WorkflowEvent) {
	data, err := evt.ToEnvelope()
	if err != nil {
		panic(fmt.Sprintf("clienttest: invalid event: %v", err))
	}
	s.EmitRaw(id, data)
}

// EmitRaw queues an arbitrary data frame on the handler's stream.
func (s *Server) EmitRaw(id string, data []byte) {
	stream := s.stream(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if stream.closed {
		return
	}
	stream.events <- data
}

// EndStream closes the handler's stream once queued events are delivered.
func (s *Server) EndStream(id string) {
	stream := s.stream(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !stream.closed {
		stream.closed = true
		close(stream.events)
	}
}

// StreamConnections returns how many times the handler's stream was opened.
func (s *Server) StreamConnections(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects[id]
}

// SentEvents returns the events posted to a handler.
func (s *Server) SentEvents(id string) []client.SendEventRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent[id])
}

// CancelCount returns how many cancel requests a handler received.
func (s *Server) CancelCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels[id]
}

// FailWith makes every request answer with status until reset with 0.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// OnRunToCompletion overrides the handler returned by the blocking run endpoint.
func (s *Server) OnRunToCompletion(fn func(name string, req client.RunRequest) client.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runComplete = fn
}

func (s *Server) stream(id string) *eventStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[id]
	if !ok {
		st = &eventStream{events: make(chan []byte, 256)}
		s.streams[id] = st
	}
	return st
}

func (s *Server) failureMiddleware(c *gin.Context) {
	s.mu.Lock()
	status := s.failStatus
	s.mu.Unlock()
	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"detail": http.StatusText(status)})
		return
	}
	c.Next()
}

func (s *Server) listWorkflows(c *gin.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.workflows))
	for name := range s.workflows {
		names = append(names, name)
	}
	s.mu.Unlock()
	slices.Sort(names)
	c.JSON(http.StatusOK, gin.H{"workflows": names})
}

func (s *Server) getGraph(c *gin.Context) {
	s.mu.Lock()
	graph, ok := s.workflows[c.Param("name")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Workflow not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"graph": graph})
}

func (s *Server) run(wait bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		var req client.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		s.mu.Lock()
		if _, ok := s.workflows[name]; !ok {
			s.mu.Unlock()
			c.JSON(http.StatusNotFound, gin.H{"detail": "Workflow not found"})
			return
		}
		s.nextID++
		id := req.HandlerID
		if id == "" {
			id = fmt.Sprintf("h-%d", s.nextID)
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		h := client.Handler{
			HandlerID:    id,
			WorkflowName: name,
			Status:       string(core.StatusRunning),
			StartedAt:    now,
		}
		if wait {
			if s.runComplete != nil {
				h = s.runComplete(name, req)
			} else {
				h.Status = string(core.StatusCompleted)
				h.CompletedAt = now
				h.Result = core.NewStopEvent(req.StartEvent)
			}
		}
		if _, ok := s.handlers[h.HandlerID]; !ok {
			s.order = append(s.order, h.HandlerID)
		}
		s.handlers[h.HandlerID] = h
		s.mu.Unlock()
		c.JSON(http.StatusOK, h)
	}
}

func (s *Server) listHandlers(c *gin.Context) {
	names := c.QueryArray("workflow_name")
	statuses := c.QueryArray("status")
	s.mu.Lock()
	out := make([]client.Handler, 0, len(s.order))
	for _, id := range s.order {
		h := s.handlers[id]
		if len(names) > 0 && !slices.Contains(names, h.WorkflowName) {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, h.Status) {
			continue
		}
		out = append(out, h)
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"handlers": out})
}

func (s *Server) getHandler(c *gin.Context) {
	h, ok := s.Handler(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Handler not found"})
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) cancelHandler(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	h, ok := s.handlers[id]
	s.cancels[id]++
	if ok && !core.RunStatus(h.Status).IsTerminal() {
		h.Status = string(core.StatusCancelled)
		h.CompletedAt = time.Now().UTC().Format(time.RFC3339Nano)
		s.handlers[id] = h
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Handler not found"})
		return
	}
	s.EndStream(id)
	c.JSON(http.StatusOK, h)
}

func (s *Server) postEvent(c *gin.Context) {
	id := c.Param("id")
	var req client.SendEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if _, err := core.ParseEnvelope([]byte(req.Event)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	_, ok := s.handlers[id]
	if ok {
		s.sent[id] = append(s.sent[id], req)
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Handler not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (s *Server) streamEvents(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.Handler(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Handler not found"})
		return
	}
	stream := s.stream(id)
	s.mu.Lock()
	s.connects[id]++
	s.mu.Unlock()
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	for {
		select {
		case data, ok := <-stream.events:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
				return
			}
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
