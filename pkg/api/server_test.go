package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/james-see/bbs1ctl/pkg/device"
	"github.com/james-see/bbs1ctl/pkg/sysex"
	"github.com/james-see/bbs1ctl/pkg/tempo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testFile(t *testing.T) *tempo.File {
	t.Helper()
	b1, err := tempo.NewBar(4, 4, 2, 12000)
	require.NoError(t, err)
	b2, err := tempo.NewBar(7, 8, 0, 15025)
	require.NoError(t, err)
	m, err := tempo.NewMap("Groove", true, 1, []tempo.Bar{b1, b2})
	require.NoError(t, err)
	f, err := tempo.NewFile(m)
	require.NoError(t, err)
	return f
}

func simServer(t *testing.T, sim *device.Simulator) *gin.Engine {
	t.Helper()
	s := New(func() (device.Transport, error) { return sim, nil },
		WithSessionOptions(device.WithTimeout(50*time.Millisecond)))
	t.Cleanup(func() { _ = s.Close() })
	return s.Router()
}

func do(r *gin.Engine, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := simServer(t, device.NewSimulator(nil))
	w := do(r, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestDeviceInfo(t *testing.T) {
	sim := device.NewSimulator(nil, device.WithVersions([3]byte{1, 0, 0}, [3]byte{2, 3, 45}))
	r := simServer(t, sim)

	w := do(r, http.MethodGet, "/api/v1/device", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var info device.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.True(t, info.Connected)
	assert.Equal(t, "2.03.45", info.Firmware)
	assert.Equal(t, "1.00.00", info.Hardware)
}

func TestTempoMaps(t *testing.T) {
	r := simServer(t, device.NewSimulator(testFile(t)))

	w := do(r, http.MethodGet, "/api/v1/tempomaps", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var view FileView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Len(t, view.Maps, 1)
	assert.Equal(t, "Groove", view.Maps[0].Name)
	assert.True(t, view.Maps[0].Looping)
	require.Len(t, view.Maps[0].Bars, 2)
	assert.InDelta(t, 150.25, view.Maps[0].Bars[1].BPM, 1e-9)
}

func TestTempoMapsMIDIAndDump(t *testing.T) {
	r := simServer(t, device.NewSimulator(testFile(t)))

	w := do(r, http.MethodGet, "/api/v1/tempomaps/midi", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MThd", w.Body.String()[:4])

	w = do(r, http.MethodGet, "/api/v1/tempomaps/syx", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	frames, err := device.ReadDump(w.Body)
	require.NoError(t, err)
	f, err := device.DecodeDump(frames)
	require.NoError(t, err)
	assert.True(t, testFile(t).Equal(f))
}

func TestDeleteTempoMaps(t *testing.T) {
	sim := device.NewSimulator(testFile(t))
	r := simServer(t, sim)

	w := do(r, http.MethodDelete, "/api/v1/tempomaps", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, sim.File().MapsCount())
}

func TestDeviceErrors(t *testing.T) {
	s := New(func() (device.Transport, error) { return nil, device.ErrNotFound })
	w := do(s.Router(), http.MethodGet, "/api/v1/device", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	sim := device.NewSimulator(nil)
	r := simServer(t, sim)
	sim.DropNext(1)
	w = do(r, http.MethodGet, "/api/v1/device", nil, "")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	w = do(r, http.MethodGet, "/api/v1/device", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func upload(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "maps.syx")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestDecode(t *testing.T) {
	r := simServer(t, device.NewSimulator(nil))

	pages, err := testFile(t).Pages(tempo.DefaultPageSize)
	require.NoError(t, err)
	var dump bytes.Buffer
	for _, page := range pages {
		dump.Write(sysex.BuildAnswer(sysex.TypeData, sysex.CmdTempoMapPage, page))
	}

	body, ct := upload(t, dump.Bytes())
	w := do(r, http.MethodPost, "/api/v1/decode", body, ct)
	require.Equal(t, http.StatusOK, w.Code)
	var view FileView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, uint8(2), view.Version)
	require.Len(t, view.Maps, 1)

	body, ct = upload(t, dump.Bytes())
	w = do(r, http.MethodPost, "/api/v1/decode?format=midi", body, ct)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "maps.mid")
}

func TestDecodeRejection(t *testing.T) {
	r := simServer(t, device.NewSimulator(nil))

	w := do(r, http.MethodPost, "/api/v1/decode", &bytes.Buffer{}, "text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct := upload(t, []byte{0x00, 0x42, 0x42, 0x53, 0x07, 0x00, 0x0A, 0x00, 0x00, 0x00})
	w = do(r, http.MethodPost, "/api/v1/decode", body, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body, ct = upload(t, []byte("hello"))
	w = do(r, http.MethodPost, "/api/v1/decode", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
