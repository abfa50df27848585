package health

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/health/service"
)

type fixedStatus struct{ st models.BotStatus }

func (f fixedStatus) Status() models.BotStatus { return f.st }

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestReadyzFollowsStartupAndStaleness(t *testing.T) {
	src := &fixedStatus{}
	state := service.NewState(src)
	srv := httptest.NewServer(NewMux(state))
	defer srv.Close()

	if code, _ := get(t, srv, "/livez"); code != http.StatusOK {
		t.Fatalf("livez = %d", code)
	}
	if code, _ := get(t, srv, "/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before start = %d", code)
	}

	state.SetReady(true)
	if code, _ := get(t, srv, "/readyz"); code != http.StatusOK {
		t.Fatalf("readyz after start = %d", code)
	}

	src.st.Stale = []string{"okx"}
	if code, _ := get(t, srv, "/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with stale exchange = %d", code)
	}
}

func TestHealthzReportsStatus(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	state := service.NewState(fixedStatus{st: models.BotStatus{
		Uptime:           90 * time.Second,
		ActiveStrategies: 2,
		ActiveSessions:   1,
		LastSignalAt:     at,
		Heartbeats:       map[string]time.Time{"okx": at},
	}})
	state.SetReady(true)
	srv := httptest.NewServer(NewMux(state))
	defer srv.Close()

	code, body := get(t, srv, "/healthz")
	if code != http.StatusOK {
		t.Fatalf("healthz = %d", code)
	}
	var resp healthResponse
	if err := sonic.UnmarshalString(body, &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Ready || resp.UptimeSec != 90 || resp.ActiveStrategies != 2 || resp.LastSignalUnix != at.Unix() {
		t.Fatalf("healthz = %+v", resp)
	}
}

func TestMetricsMounted(t *testing.T) {
	srv := httptest.NewServer(NewMux(service.NewState(nil)))
	defer srv.Close()
	code, body := get(t, srv, "/metrics")
	if code != http.StatusOK || !strings.Contains(body, "# HELP") {
		t.Fatalf("metrics = %d", code)
	}
}
