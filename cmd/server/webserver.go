package main

import (
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"time"

	"github.com/coder/websocket"
	mandel "github.com/marben/deepzoom"
	"github.com/sirupsen/logrus"
)

// webServer routes the worker websocket endpoint and the client endpoints.
func webServer(s *server, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.websocketHandler)
	mux.HandleFunc("GET /image.png", s.imageHandler)
	mux.HandleFunc("GET /status", s.statusHandler)
	mux.HandleFunc("POST /job", s.jobHandler)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// websocketHandler plugs a worker into rendering for as long as its
// connection lives.
func (s *server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept")
		return
	}
	defer c.CloseNow()

	log := s.log.WithField("worker", r.RemoteAddr)
	log.Info("worker connected")
	if err := s.serveWorker(r.Context(), mandel.NewRemoteRenderer(c)); err != nil {
		log.WithError(err).Warn("worker dropped")
		return
	}
	c.Close(websocket.StatusNormalClosure, "")
}

// imageHandler waits for the current job and sends it as PNG. With
// ?partial=1 it sends what is rendered so far without waiting.
func (s *server) imageHandler(w http.ResponseWriter, r *http.Request) {
	iws, _ := s.job()
	var img *image.RGBA
	if r.URL.Query().Get("partial") != "" {
		img = iws.snapshot()
	} else {
		var err error
		if img, err = iws.GetImage(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Job-Id", iws.job.ID)
	if err := png.Encode(w, img); err != nil {
		s.log.WithError(err).Warn("send image")
	}
}

// Status describes the current job.
type Status struct {
	Job      mandel.Job `json:"job"`
	Workers  int        `json:"workers"`
	Finished float32    `json:"finished"`
	Complete bool       `json:"complete"`
	Error    string     `json:"error,omitempty"`
}

func (s *server) status() Status {
	iws, _ := s.job()
	st := Status{
		Job:      iws.job,
		Workers:  iws.activeWorkers(),
		Finished: iws.finished(),
	}
	select {
	case <-iws.done():
		st.Complete = iws.complete()
		if !st.Complete {
			st.Error = iws.err().Error()
		}
	default:
	}
	return st
}

func (s *server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.log, s.status())
}

// JobRequest is the body of POST /job. Landmark is used when Params is
// empty; zero sizes keep the configured frame size.
type JobRequest struct {
	Params   string `json:"params"`
	Landmark string `json:"landmark"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func (s *server) jobHandler(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Params == "" {
		l, err := mandel.LookupLandmark(req.Landmark)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Params = l.Params
	}
	if req.Width == 0 {
		req.Width = s.cfg.Width
	}
	if req.Height == 0 {
		req.Height = s.cfg.Height
	}
	job, err := s.submit(req.Params, req.Width, req.Height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.log, job)
}

func writeJSON(w http.ResponseWriter, log logrus.FieldLogger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("send json")
	}
}
