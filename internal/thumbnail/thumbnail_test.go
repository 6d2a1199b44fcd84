package thumbnail

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronozoom/internal/metrics"
	"chronozoom/pkg/models"
)

func startDispatcher(t *testing.T) (*Dispatcher, *Registry, *metrics.Metrics) {
	t.Helper()
	reg := NewRegistry()
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher("127.0.0.1:0", "/var/thumbs", reg, m, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- d.Run() }()
	t.Cleanup(func() {
		require.NoError(t, d.Close())
		require.NoError(t, <-done)
	})
	require.Eventually(t, func() bool { return d.LocalAddr() != nil }, time.Second, 5*time.Millisecond)
	return d, reg, m
}

func TestDispatcher_SendsJobsToRegisteredWorker(t *testing.T) {
	d, reg, m := startDispatcher(t)

	worker, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer worker.Close()

	hello, _ := json.Marshal(RegisterMessage{Type: RegisterMessageType, WorkerID: "w1"})
	_, err = worker.WriteToUDP(hello, d.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 5*time.Millisecond)

	item := models.ContentItem{ID: uuid.New(), CollectionID: uuid.New(), MediaType: "Image", Uri: "https://example.org/a.jpg"}
	d.Enqueue(item)

	require.NoError(t, worker.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 2048)
	n, _, err := worker.ReadFromUDP(buf)
	require.NoError(t, err)

	var job Job
	require.NoError(t, json.Unmarshal(buf[:n], &job))
	assert.Equal(t, JobMessageType, job.Type)
	assert.Equal(t, item.ID, job.ContentItemID)
	assert.Equal(t, item.Uri, job.Uri)
	assert.Equal(t, "/var/thumbs/"+item.ID.String()+".png", job.Target)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ThumbnailJobsTotal.WithLabelValues("sent")))
}

func TestDispatcher_SkipsNonImagesAndCountsMissingWorkers(t *testing.T) {
	d, _, m := startDispatcher(t)

	d.Enqueue(models.ContentItem{ID: uuid.New(), MediaType: "video", Uri: "https://example.org/v.mp4"})
	d.Enqueue(models.ContentItem{ID: uuid.New(), MediaType: "image"})
	assert.Equal(t, 0, testutil.CollectAndCount(m.ThumbnailJobsTotal))

	d.Enqueue(models.ContentItem{ID: uuid.New(), MediaType: "image", Uri: "https://example.org/a.png"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ThumbnailJobsTotal.WithLabelValues("no_worker")))
}

func TestRegistry_RoundRobin(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Next()
	assert.False(t, ok)

	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}
	r.Register("b", addr)
	r.Register("a", addr)
	r.Register("", addr)
	r.Register("c", nil)
	require.Equal(t, 2, r.Len())

	var got []string
	for i := 0; i < 4; i++ {
		w, ok := r.Next()
		require.True(t, ok)
		got = append(got, w.ID)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, got)

	r.Remove("a")
	w, _ := r.Next()
	assert.Equal(t, "b", w.ID)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image"))
	assert.True(t, IsImage(" Picture "))
	assert.False(t, IsImage("video"))
	assert.False(t, IsImage(""))
}

func TestParseRegisterMessage(t *testing.T) {
	_, err := parseRegisterMessage([]byte(`{"type":"register"}`))
	assert.Error(t, err)
	_, err = parseRegisterMessage([]byte(`nope`))
	assert.Error(t, err)
	msg, err := parseRegisterMessage([]byte(`{"type":"register","worker_id":"w"}`))
	require.NoError(t, err)
	assert.Equal(t, "w", msg.WorkerID)
}
