// Package thumbnail hands image content items to thumbnail workers.
//
// Workers announce themselves with a UDP datagram
// {"type":"register","worker_id":"..."} and then receive one job datagram
// per image. Jobs are spread round robin; delivery is best effort and a
// worker that cannot be reached twice in a row is forgotten.
package thumbnail

import (
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chronozoom/internal/metrics"
	"chronozoom/pkg/models"
)

const (
	RegisterMessageType   = "register"
	UnregisterMessageType = "unregister"
	JobMessageType        = "thumbnail"
)

type RegisterMessage struct {
	Type     string `json:"type"`
	WorkerID string `json:"worker_id"`
}

// Job asks a worker to render Uri into Target.
type Job struct {
	Type          string    `json:"type"`
	ContentItemID uuid.UUID `json:"content_item_id"`
	CollectionID  uuid.UUID `json:"collection_id"`
	Uri           string    `json:"uri"`
	Target        string    `json:"target"`
}

type Worker struct {
	ID   string
	Addr *net.UDPAddr
}

type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
	next    int
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

func (r *Registry) Register(id string, addr *net.UDPAddr) {
	if id == "" || addr == nil {
		return
	}
	r.mu.Lock()
	r.workers[id] = Worker{ID: id, Addr: addr}
	r.mu.Unlock()
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.workers, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Next picks the worker for the next job, or false when none is known.
func (r *Registry) Next() (Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.workers) == 0 {
		return Worker{}, false
	}
	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	w := r.workers[ids[r.next%len(ids)]]
	r.next++
	return w, true
}

// IsImage reports whether a content item of this media type gets a
// thumbnail.
func IsImage(mediaType string) bool {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image", "picture", "photo":
		return true
	}
	return false
}

// Dispatcher listens for worker registrations and sends them jobs.
type Dispatcher struct {
	addr     string
	dir      string
	registry *Registry
	metrics  *metrics.Metrics
	log      zerolog.Logger

	mu   sync.RWMutex
	conn *net.UDPConn
}

// NewDispatcher builds a dispatcher whose jobs write thumbnails under dir.
// m may be nil.
func NewDispatcher(addr, dir string, registry *Registry, m *metrics.Metrics, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		addr:     addr,
		dir:      dir,
		registry: registry,
		metrics:  m,
		log:      log.With().Str("component", "thumbnail").Logger(),
	}
}

// Run reads worker registrations until Close is called.
func (d *Dispatcher) Run() error {
	udpAddr, err := net.ResolveUDPAddr("udp", d.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	d.log.Info().Str("addr", conn.LocalAddr().String()).Msg("thumbnail dispatcher listening")

	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		msg, err := parseRegisterMessage(buf[:n])
		if err != nil {
			d.log.Warn().Err(err).Str("remote", addr.String()).Msg("invalid worker message")
			continue
		}
		switch msg.Type {
		case RegisterMessageType:
			d.registry.Register(msg.WorkerID, addr)
			d.log.Info().Str("worker", msg.WorkerID).Str("remote", addr.String()).Msg("worker registered")
		case UnregisterMessageType:
			d.registry.Remove(msg.WorkerID)
			d.log.Info().Str("worker", msg.WorkerID).Msg("worker left")
		}
	}
}

func (d *Dispatcher) LocalAddr() net.Addr {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

func (d *Dispatcher) Close() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// Enqueue sends a job for item when it is an image. It never blocks on a
// worker and never fails the caller: problems are logged and counted.
func (d *Dispatcher) Enqueue(item models.ContentItem) {
	if !IsImage(item.MediaType) || item.Uri == "" {
		return
	}
	d.mu.RLock()
	conn := d.conn
	d.mu.RUnlock()
	if conn == nil {
		d.count("not_running")
		return
	}

	payload, err := json.Marshal(Job{
		Type:          JobMessageType,
		ContentItemID: item.ID,
		CollectionID:  item.CollectionID,
		Uri:           item.Uri,
		Target:        filepath.Join(d.dir, item.ID.String()+".png"),
	})
	if err != nil {
		d.log.Error().Err(err).Msg("encode thumbnail job")
		d.count("error")
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		w, ok := d.registry.Next()
		if !ok {
			d.log.Warn().Str("content_item", item.ID.String()).Msg("no thumbnail worker registered")
			d.count("no_worker")
			return
		}
		if err := d.sendWithRetry(conn, w, payload); err != nil {
			d.log.Warn().Err(err).Str("worker", w.ID).Msg("dropping unreachable thumbnail worker")
			d.registry.Remove(w.ID)
			continue
		}
		d.count("sent")
		return
	}
	d.count("error")
}

func (d *Dispatcher) sendWithRetry(conn *net.UDPConn, w Worker, payload []byte) error {
	if _, err := conn.WriteToUDP(payload, w.Addr); err == nil {
		return nil
	}
	_, err := conn.WriteToUDP(payload, w.Addr)
	return err
}

func (d *Dispatcher) count(result string) {
	if d.metrics != nil {
		d.metrics.ThumbnailJobsTotal.WithLabelValues(result).Inc()
	}
}

func parseRegisterMessage(data []byte) (RegisterMessage, error) {
	var msg RegisterMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.WorkerID == "" || msg.Type == "" {
		return msg, errors.New("missing required fields")
	}
	return msg, nil
}
