package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/Tomochka91/ULogger/internal/dbwriter"
	"github.com/Tomochka91/ULogger/internal/mbox"
	"github.com/Tomochka91/ULogger/internal/mboxcounter"
	"github.com/Tomochka91/ULogger/internal/runtime"
	"github.com/Tomochka91/ULogger/internal/settings"
	"github.com/Tomochka91/ULogger/logging"
)

func noWriterFactory(ctx context.Context, base settings.DbSettings, config settings.ConnectionConfig) (dbwriter.Writer, error) {
	return nil, nil
}

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	store := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	mgr := runtime.NewManager(settings.DefaultDbSettings(), noWriterFactory)
	return &Deps{Store: store, Runtime: mgr, Logger: logging.NewNoopLogger()}
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, rec.Body.String())
	}
	return env
}

func TestHealth(t *testing.T) {
	d := newTestDeps(t)
	mux := NewMux(d)

	resp := doRequest(t, mux, http.MethodGet, "/logger/health", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
}

func TestConnectionsCRUD(t *testing.T) {
	d := newTestDeps(t)
	mux := NewMux(d)

	created := doRequest(t, mux, http.MethodPost, "/logger/connections", map[string]any{
		"name": "line-1",
		"type": "mbox_counter",
		"mbox_counter": map[string]any{
			"port": map[string]any{"port": "/dev/null", "autoconnect": false},
		},
	})
	if created.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", created.Code, created.Body.String())
	}
	createdEnv := decodeEnvelope(t, created)
	if !createdEnv.Success {
		t.Fatalf("create returned success=false: %+v", createdEnv)
	}
	createdData := createdEnv.Data.(map[string]any)
	id := int(createdData["id"].(float64))

	list := doRequest(t, mux, http.MethodGet, "/logger/connections", nil)
	listEnv := decodeEnvelope(t, list)
	items := listEnv.Data.([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 connection listed, got %d", len(items))
	}

	get := doRequest(t, mux, http.MethodGet, "/logger/connections/999", nil)
	if get.Code != http.StatusNotFound {
		t.Errorf("get unknown id status = %d, want 404", get.Code)
	}

	del := doRequest(t, mux, http.MethodDelete, "/logger/connections/"+itoa(id), nil)
	if del.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", del.Code, del.Body.String())
	}

	delAgain := doRequest(t, mux, http.MethodDelete, "/logger/connections/"+itoa(id), nil)
	if delAgain.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", delAgain.Code)
	}
}

func TestDbSettingsGetSaveTest(t *testing.T) {
	d := newTestDeps(t)
	mux := NewMux(d)

	get := doRequest(t, mux, http.MethodGet, "/logger/db/settings", nil)
	if get.Code != http.StatusOK {
		t.Fatalf("get status = %d", get.Code)
	}
	getEnv := decodeEnvelope(t, get)
	data := getEnv.Data.(map[string]any)
	if data["host"] != "127.0.0.1" {
		t.Errorf("default host = %v, want 127.0.0.1", data["host"])
	}

	save := doRequest(t, mux, http.MethodPost, "/logger/db/settings", map[string]any{
		"action": "save",
		"settings": map[string]any{
			"host": "db.internal", "port": 5433, "database": "ulogger",
			"user": "svc", "password": "secret", "sslmode": "require",
		},
	})
	if save.Code != http.StatusOK {
		t.Fatalf("save status = %d, body = %s", save.Code, save.Body.String())
	}

	reGet := doRequest(t, mux, http.MethodGet, "/logger/db/settings", nil)
	reGetEnv := decodeEnvelope(t, reGet)
	reGetData := reGetEnv.Data.(map[string]any)
	if reGetData["host"] != "db.internal" {
		t.Errorf("saved host = %v, want db.internal", reGetData["host"])
	}

	test := doRequest(t, mux, http.MethodPost, "/logger/db/settings", map[string]any{
		"action": "test",
		"settings": map[string]any{
			"host": "127.0.0.1", "port": 1, "database": "nope",
			"user": "nope", "password": "nope", "sslmode": "disable",
		},
	})
	testEnv := decodeEnvelope(t, test)
	if testEnv.Success {
		t.Error("expected test connection against an unreachable host to fail")
	}
}

func TestTestSerialPortUnreachable(t *testing.T) {
	d := newTestDeps(t)
	mux := NewMux(d)

	resp := doRequest(t, mux, http.MethodPost, "/logger/serial-ports/test", map[string]any{
		"port": "/dev/definitely-not-a-real-port",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	env := decodeEnvelope(t, resp)
	data := env.Data.(map[string]any)
	if data["success"].(bool) {
		t.Error("expected opening a nonexistent port to fail")
	}
}

func TestEasySerialParserTest(t *testing.T) {
	d := newTestDeps(t)
	mux := NewMux(d)

	resp := doRequest(t, mux, http.MethodPost, "/logger/easy-serial/parser/test", map[string]any{
		"raw_text": "42;3.5;hello\\n",
		"parser_settings": map[string]any{
			"terminator": "\\n",
			"separator":  ";",
			"encoding":   "utf-8",
			"fields": []map[string]any{
				{"index": 0, "name": "count", "type": "int"},
				{"index": 1, "name": "value", "type": "float"},
				{"index": 2, "name": "label", "type": "string"},
			},
		},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	env := decodeEnvelope(t, resp)
	data := env.Data.(map[string]any)
	if data["error"] != nil {
		t.Fatalf("unexpected parser error: %v", data["error"])
	}
	parsed := data["parsed"].(map[string]any)
	if parsed["count"].(float64) != 42 {
		t.Errorf("count = %v, want 42", parsed["count"])
	}
	if parsed["label"] != "hello" {
		t.Errorf("label = %v, want hello", parsed["label"])
	}
}

func TestEasySerialParserTestNoFrame(t *testing.T) {
	d := newTestDeps(t)
	mux := NewMux(d)

	resp := doRequest(t, mux, http.MethodPost, "/logger/easy-serial/parser/test", map[string]any{
		"raw_text": "no terminator here",
		"parser_settings": map[string]any{
			"terminator": "\\n",
			"separator":  ";",
		},
	})
	env := decodeEnvelope(t, resp)
	data := env.Data.(map[string]any)
	if data["error"] == nil {
		t.Error("expected an error when no frame terminator is present")
	}
}

func TestAvailableMboxCountersExcludesBoundDevices(t *testing.T) {
	d := newTestDeps(t)

	counterConn, err := d.Store.UpsertConnection(settings.ConnectionConfig{
		Name: "counters", Type: settings.ConnectionMboxCounter,
		MboxCounter: &mboxcounter.Config{
			Port: mboxcounter.PortSettings{Port: "/dev/null", AutoConnect: false},
			Devices: []mboxcounter.DeviceConfig{
				{DeviceID: 5, Name: "dev-5", Serial: 501, Enabled: true},
				{DeviceID: 6, Name: "dev-6", Serial: 601, Enabled: true},
			},
		},
	})
	if err != nil {
		t.Fatalf("create counter connection: %v", err)
	}

	boundDevice := 5
	if _, err := d.Store.UpsertConnection(settings.ConnectionConfig{
		Name: "scale", Type: settings.ConnectionMbox,
		Mbox: &mbox.Config{
			Port:                mbox.PortSettings{Port: "/dev/null", AutoConnect: false},
			ExtCounter:          true,
			CounterConnectionID: counterConn.ID,
			CounterDeviceID:     &boundDevice,
		},
	}); err != nil {
		t.Fatalf("create mbox connection: %v", err)
	}

	if _, err := d.registerWorker(context.Background(), counterConn); err != nil {
		t.Fatalf("registerWorker: %v", err)
	}

	mux := NewMux(d)
	resp := doRequest(t, mux, http.MethodGet, "/logger/mbox/available-counters", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.Code, resp.Body.String())
	}
	env := decodeEnvelope(t, resp)
	items := env.Data.([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 available counter, got %d: %+v", len(items), items)
	}
	item := items[0].(map[string]any)
	if item["device_id"].(float64) != 6 {
		t.Errorf("expected the free device (6) to be listed, got %v", item["device_id"])
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
