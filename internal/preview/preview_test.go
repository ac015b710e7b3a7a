package preview

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDifferFirstFrameAlwaysChanged(t *testing.T) {
	d := newFrameDiffer()
	pix := []byte{1, 2, 3, 4}
	if !d.HasChanged(pix) {
		t.Fatal("first frame reported unchanged")
	}
	if d.HasChanged(pix) {
		t.Fatal("identical frame reported changed")
	}
	pix[0] = 9
	if !d.HasChanged(pix) {
		t.Fatal("modified frame reported unchanged")
	}

	d.Reset()
	if !d.HasChanged(pix) {
		t.Fatal("frame after reset reported unchanged")
	}

	total, skipped := d.Stats()
	if total != 4 || skipped != 1 {
		t.Fatalf("stats = %d/%d, want 4/1", total, skipped)
	}
}

func TestAdaptiveQualityDropsUnderCPUPressure(t *testing.T) {
	a := newAdaptiveQuality(60)
	a.cooldown = 0
	a.cpuPercent = func() float64 { return 95 }

	for i := 0; i < 10; i++ {
		a.RecordFrame(5*time.Millisecond, 10*1024)
	}
	a.Adjust()
	if got := a.Quality(); got != 55 {
		t.Fatalf("quality = %d, want 55 after CPU pressure", got)
	}
}

func TestAdaptiveQualityRecoversWhenIdle(t *testing.T) {
	a := newAdaptiveQuality(60)
	a.cooldown = 0
	a.cpuPercent = func() float64 { return 10 }

	for i := 0; i < 10; i++ {
		a.RecordFrame(2*time.Millisecond, 10*1024)
	}
	a.Adjust()
	if got := a.Quality(); got != 63 {
		t.Fatalf("quality = %d, want 63", got)
	}

	// Quality never exceeds base+15.
	for i := 0; i < 50; i++ {
		a.RecordFrame(2*time.Millisecond, 10*1024)
		a.Adjust()
	}
	if got := a.Quality(); got > 75 {
		t.Fatalf("quality = %d exceeded ceiling 75", got)
	}
}

func TestAdaptiveQualityFloor(t *testing.T) {
	a := newAdaptiveQuality(60)
	a.cooldown = 0
	a.cpuPercent = func() float64 { return 100 }
	for i := 0; i < 100; i++ {
		a.RecordFrame(50*time.Millisecond, 200*1024)
		a.Adjust()
	}
	if got := a.Quality(); got != 20 {
		t.Fatalf("quality = %d, want floor 20", got)
	}
}

func TestScaleImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 60))
	out := scaleImage(img, 0.5)
	if got := out.Bounds().Dx(); got != 50 {
		t.Fatalf("scaled width = %d, want 50", got)
	}
	if same := scaleImage(img, 1.0); same != image.Image(img) {
		t.Fatal("factor 1.0 should return the original")
	}
}

func TestEncodeJPEGProducesValidData(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), A: 0xff})
		}
	}
	data, err := encodeJPEG(img, 80)
	if err != nil {
		t.Fatalf("encodeJPEG: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
		t.Fatal("output missing JPEG SOI marker")
	}
}

func TestServerStreamsFramesToViewer(t *testing.T) {
	srv := NewServer(Config{Addr: "127.0.0.1:0"}, func() any {
		return map[string]string{"state": "playing"}
	})
	addr, err := srv.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered asynchronously with the HTTP handler.
	deadline := time.Now().Add(2 * time.Second)
	for srv.ViewerCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.ViewerCount() != 1 {
		t.Fatal("viewer never registered")
	}

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	img.SetRGBA(3, 3, color.RGBA{R: 0xff, A: 0xff})
	srv.Push(img, img.Rect)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", mt)
	}
	if !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
		t.Fatal("frame is not a JPEG")
	}
}

func TestServerPushWithoutViewersIsCheap(t *testing.T) {
	srv := NewServer(Config{Addr: "127.0.0.1:0"}, nil)
	if _, err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	srv.Push(img, img.Rect)

	// No viewer means the differ never ran; the next identical frame with
	// a viewer attached must still be treated as new.
	if total, _ := srv.differ.Stats(); total != 0 {
		t.Fatalf("differ ran with no viewers: total=%d", total)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := NewServer(Config{Addr: "127.0.0.1:0"}, func() any {
		return map[string]string{"state": "recording"}
	})
	addr, err := srv.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	resp, err := http.Get("http://" + addr + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := payload["viewers"]; !ok {
		t.Fatal("status missing viewers")
	}
	sess, ok := payload["session"].(map[string]any)
	if !ok || sess["state"] != "recording" {
		t.Fatalf("status session = %v", payload["session"])
	}
}
