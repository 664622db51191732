package metrics

import (
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen unexpectedly failed: %s", err)
	}
	listenAddr := listener.Addr().String()
	listener.Close()

	SyncHeight.Set(1234)
	server := NewServer(listenAddr)
	server.Start()
	defer server.Stop()

	var body []byte
	for i := 0; i < 50; i++ {
		resp, err := http.Get("http://" + listenAddr + "/metrics")
		if err != nil {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("ReadAll unexpectedly failed: %s", err)
		}
		break
	}
	if body == nil {
		t.Fatalf("metrics server never answered")
	}
	if !strings.Contains(string(body), "dashspv_sync_height 1234") {
		t.Errorf("sync height is missing from the metrics output")
	}
}
