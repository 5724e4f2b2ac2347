package history

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/magnet-door/internal/logic"
)

func TestOccupancyPoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := occupancyPoint("lab-door", ts, logic.Occupancy{PersonCount: 2, Capacity: 5})

	line := write.PointToLineProtocol(p, time.Second)
	for _, want := range []string{
		"occupancy,device=lab-door ",
		"people_count=2i",
		"capacity=5i",
		"full=false",
		" 1772355600",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line protocol %q missing %q", line, want)
		}
	}
}

func TestInfluxRecorderWrites(t *testing.T) {
	bodies := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/api/v2/write") {
			b, _ := io.ReadAll(r.Body)
			bodies <- string(b)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec := NewInfluxRecorder(Config{URL: srv.URL, Token: "t", Org: "o", Bucket: "b", Device: "d1"}, nil)
	rec.Record(time.Now(), logic.Occupancy{PersonCount: 3, Capacity: 5})
	rec.Close()

	select {
	case body := <-bodies:
		if !strings.Contains(body, "people_count=3i") {
			t.Errorf("unexpected write body %q", body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no write reached the server")
	}
	if !rec.LastError().IsZero() {
		t.Errorf("unexpected write error at %v", rec.LastError())
	}
}

func TestFakeAndNop(t *testing.T) {
	var r OccupancyRecorder = &Fake{}
	r.Record(time.Now(), logic.Occupancy{PersonCount: 1, Capacity: 5})
	r.Close()

	f := r.(*Fake)
	if f.Len() != 1 || !f.Closed {
		t.Errorf("unexpected fake state: %+v", f)
	}

	var n OccupancyRecorder = Nop{}
	n.Record(time.Now(), logic.Occupancy{})
	n.Close()
}
