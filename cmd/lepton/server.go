// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maruel/go-thermal/gray14"
	"github.com/maruel/go-thermal/lepton"
	"golang.org/x/net/websocket"
)

//go:embed static
var staticFiles embed.FS

func read(name string) []byte {
	b, err := staticFiles.ReadFile("static/" + name)
	if err != nil {
		panic(err)
	}
	return b
}

// WebServer serves the live view and accepts commands.
type WebServer struct {
	loop commandSender

	cond   sync.Cond
	status lepton.Event
	frames [9 * 10]lepton.Event // 10 seconds worth of frames.
	count  int                  // Number of frames ever added.
	closed bool
}

func newWebServer(loop commandSender) *WebServer {
	return &WebServer{loop: loop, cond: *sync.NewCond(&sync.Mutex{})}
}

// StartWebServer listens on port until ctx is canceled.
func StartWebServer(ctx context.Context, port int, loop commandSender) (*WebServer, error) {
	w := newWebServer(loop)
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: loggingHandler{w.handler()}}
	fmt.Printf("Listening on %s\n", ln.Addr())
	go func() {
		if err := srv.Serve(ln); err != http.ErrServerClosed {
			log.Printf("web: %s", err)
		}
	}()
	go func() {
		<-ctx.Done()
		w.Close()
		c, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	}()
	return w, nil
}

// AddFrame records a rendered frame and wakes up the streams.
func (s *WebServer) AddFrame(ev lepton.Event) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.frames[s.count%len(s.frames)] = ev
	s.count++
	s.cond.Broadcast()
}

// SetStatus records the last status event.
func (s *WebServer) SetStatus(ev lepton.Event) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.status = ev
}

// Close stops the streams.
func (s *WebServer) Close() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

func (s *WebServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.root)
	mux.HandleFunc("/favicon.ico", s.favicon)
	mux.HandleFunc("/still.png", s.still)
	mux.HandleFunc("/still16.png", s.still16)
	mux.HandleFunc("/api/status", s.apiStatus)
	mux.HandleFunc("/api/command", s.apiCommand)
	mux.Handle("/stream", websocket.Handler(s.stream))
	return mux
}

func (s *WebServer) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(read("root.html"))
}

func (s *WebServer) favicon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=2592000") // 30d
	_, _ = w.Write(read("favicon.svg"))
}

// last returns the most recent frame.
func (s *WebServer) last() (lepton.Event, bool) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	if s.count == 0 {
		return lepton.Event{}, false
	}
	return s.frames[(s.count-1)%len(s.frames)], true
}

func (s *WebServer) still(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.last()
	if !ok {
		http.Error(w, "No frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	if err := png.Encode(w, ev.Image); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *WebServer) still16(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.last()
	if !ok {
		http.Error(w, "No frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	img := gray14.ToGray16(ev.Geometry.Samples(nil, ev.Frame), ev.Geometry.Bounds())
	if err := png.Encode(w, img); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// statusJSON is sent over /api/status, the websocket and MQTT.
type statusJSON struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Palette string `json:"palette"`
	Min     uint16 `json:"min"`
	Max     uint16 `json:"max"`
	Seq     uint64 `json:"seq"`
	// Scene range in °C.
	SceneMin float64          `json:"scene_min_c"`
	SceneMax float64          `json:"scene_max_c"`
	Meta     *lepton.Metadata `json:"meta,omitempty"`
	Stats    lepton.Stats     `json:"stats"`
}

// makeStatus merges the last status event with the last frame.
func makeStatus(status, frame lepton.Event) *statusJSON {
	out := &statusJSON{Status: status.Status, Stats: status.Stats}
	if status.Err != nil {
		out.Error = status.Err.Error()
	}
	if frame.Frame != nil {
		out.Palette = frame.Palette.String()
		out.Min = frame.Min
		out.Max = frame.Max
		out.Seq = frame.Frame.Seq
		out.SceneMin = lepton.Celsius(frame.SceneMin)
		out.SceneMax = lepton.Celsius(frame.SceneMax)
		out.Stats = frame.Stats
		if frame.Frame.HasTelemetry {
			m := frame.Frame.Metadata
			out.Meta = &m
		}
	}
	return out
}

func (s *WebServer) currentStatus() *statusJSON {
	frame, _ := s.last()
	s.cond.L.Lock()
	status := s.status
	s.cond.L.Unlock()
	return makeStatus(status, frame)
}

func (s *WebServer) apiStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.currentStatus()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// apiCommand accepts a textual command as the request body, e.g. "palette
// iron".
func (s *WebServer) apiCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, 256))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := parseCommand(string(b))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.loop.Send(c); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, lepton.ErrQueueFull) {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), code)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "%s\n", c)
}

// stream sends the most recent frames as WebSocket messages.
//
// Message I is a base64 encoded PNG. Message M is the JSON status.
func (s *WebServer) stream(w *websocket.Conn) {
	log.Printf("websocket from %s", w.Request().RemoteAddr)
	defer w.Close()
	buf := &bytes.Buffer{}
	sent := 0
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	for {
		for !s.closed && sent == s.count {
			s.cond.Wait()
		}
		if s.closed {
			return
		}
		// Skip what a slow client missed.
		sent = s.count
		ev := s.frames[(sent-1)%len(s.frames)]
		st := makeStatus(s.status, ev)
		s.cond.L.Unlock()
		// Do the actual I/O without the lock.
		err := writeFrame(w, buf, ev, st)
		s.cond.L.Lock()
		if err != nil {
			log.Printf("websocket err: %s", err)
			return
		}
	}
}

func writeFrame(w io.Writer, buf *bytes.Buffer, ev lepton.Event, st *statusJSON) error {
	buf.Reset()
	buf.WriteString("I")
	encoder := base64.NewEncoder(base64.StdEncoding, buf)
	if err := png.Encode(encoder, ev.Image); err != nil {
		return err
	}
	encoder.Close()
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	buf.Reset()
	buf.WriteString("M")
	if err := json.NewEncoder(buf).Encode(st); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Private details.

type loggingHandler struct {
	handler http.Handler
}

type loggingResponseWriter struct {
	http.ResponseWriter
	length int
	status int
}

func (l *loggingResponseWriter) Write(data []byte) (size int, err error) {
	size, err = l.ResponseWriter.Write(data)
	l.length += size
	return
}

func (l *loggingResponseWriter) WriteHeader(status int) {
	l.ResponseWriter.WriteHeader(status)
	l.status = status
}

// Hijack is needed for websocket.
func (l *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := l.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

// ServeHTTP logs each HTTP request if -v is passed.
func (l loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
	l.handler.ServeHTTP(lrw, r)
	log.Printf("%s - %3d %6db %4s %s", r.RemoteAddr, lrw.status, lrw.length, r.Method, strings.TrimSpace(r.RequestURI))
}
