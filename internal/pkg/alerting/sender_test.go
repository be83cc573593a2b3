package alerting

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestMirrorIgnoresNonAlertTopics(t *testing.T) {
	is := is.New(t)
	s, err := New(nil, zerolog.Nop())
	is.NoErr(err)

	// no subscribers registered, should not panic or block
	s.Mirror("sensors/water-level/WL-1/data", map[string]any{"level": 1})
}

func TestMirrorDeliversCloudEventToSubscriber(t *testing.T) {
	is := is.New(t)

	var mu sync.Mutex
	var receivedType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		receivedType = r.Header.Get("Ce-Type")
		mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		_ = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &Config{Notifications: []Notification{
		{Type: "critical.water_high", Subscribers: []Subscriber{{Endpoint: srv.URL}}},
	}}
	s, err := New(cfg, zerolog.Nop())
	is.NoErr(err)

	s.Mirror("alerts/critical/water_high", map[string]any{"levelCm": 30})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := receivedType
		mu.Unlock()
		if got != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	is.True(strings.Contains(receivedType, "alert"))
}

func TestSplitAlertTopic(t *testing.T) {
	is := is.New(t)

	severity, kind, ok := splitAlertTopic("alerts/critical/water_high")
	is.True(ok)
	is.Equal(severity, "critical")
	is.Equal(kind, "water_high")

	_, _, ok = splitAlertTopic("sensors/water-level/WL-1/data")
	is.True(!ok)
}
