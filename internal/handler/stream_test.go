package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolbus/internal/domain"
	"schoolbus/internal/repository"
	"schoolbus/internal/service"
	"schoolbus/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type streamEnv struct {
	riders   *store.Collection[*domain.Rider]
	vehicles *store.Collection[*domain.Vehicle]
	server   *httptest.Server
	sessions *store.MemorySessions
}

func newStreamEnv(t *testing.T) *streamEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := store.NewLocalNotifier()

	e := &streamEnv{sessions: store.NewMemorySessions()}
	e.riders = store.NewCollection[*domain.Rider](repository.CollectionRiders,
		store.NewMemoryDocuments(
			&domain.Rider{ID: "R1", Name: "a", Attending: true, BoardingStatus: domain.BoardingStatusDefault},
			&domain.Rider{ID: "R2", Name: "b", Attending: true, BoardingStatus: domain.BoardingStatusDefault},
		), notifier, logger)
	e.vehicles = store.NewCollection[*domain.Vehicle](repository.CollectionVehicles,
		store.NewMemoryDocuments(&domain.Vehicle{ID: "V1", Password: "pw"}), notifier, logger)
	guardians := store.NewCollection[*domain.Guardian](repository.CollectionGuardians,
		store.NewMemoryDocuments(&domain.Guardian{ID: "G1", Password: "pw", RiderIDs: []string{"R2"}}), notifier, logger)

	notifications := service.NewNotificationService(logger)
	viewer := service.NewViewerService(e.riders, guardians, e.vehicles, nil, notifications, nil, logger)
	auth := service.NewAuthService(guardians, e.vehicles, e.sessions, logger)
	h := NewStreamHandler(viewer, auth, logger)

	r := gin.New()
	r.GET("/v1/stream/riders", h.Riders)
	r.GET("/v1/stream/vehicles", h.Vehicles)
	e.server = httptest.NewServer(r)
	t.Cleanup(e.server.Close)
	return e
}

func (e *streamEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type riderFrame struct {
	Type string          `json:"type"`
	Data []RiderResponse `json:"data"`
}

func readRiders(t *testing.T, conn *websocket.Conn) riderFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f riderFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestStream_RidersPushesEveryChange(t *testing.T) {
	e := newStreamEnv(t)
	conn := e.dial(t, "/v1/stream/riders")

	first := readRiders(t, conn)
	assert.Equal(t, "riders", first.Type)
	assert.Len(t, first.Data, 2)

	require.NoError(t, e.riders.Update(context.Background(),
		&domain.Rider{ID: "R1", Name: "a", Attending: false, BoardingStatus: domain.BoardingStatusDefault}))

	next := readRiders(t, conn)
	require.Len(t, next.Data, 2)
	assert.False(t, next.Data[0].Attending)
}

func TestStream_GuardianRidersRequireSession(t *testing.T) {
	e := newStreamEnv(t)
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/v1/stream/riders?guardian_id=G1"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, e.sessions.Save(context.Background(),
		&domain.Session{Token: "tok", Identity: "G1", Role: domain.RoleGuardian}, time.Hour))
	conn := e.dial(t, "/v1/stream/riders?guardian_id=G1&token=tok")

	f := readRiders(t, conn)
	require.Len(t, f.Data, 1)
	assert.Equal(t, "R2", f.Data[0].ID)
}

func TestStream_Vehicles(t *testing.T) {
	e := newStreamEnv(t)
	conn := e.dial(t, "/v1/stream/vehicles")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f struct {
		Type string            `json:"type"`
		Data []VehicleResponse `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "vehicles", f.Type)
	require.Len(t, f.Data, 1)
	assert.Equal(t, "V1", f.Data[0].ID)
}
