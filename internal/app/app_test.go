package app

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mirrormocks "github.com/stacklok/content-mirror/internal/mirror/mocks"
)

// fakeBackground stands in for the sync poller
type fakeBackground struct {
	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
	stopErr     error
}

func (f *fakeBackground) Start(ctx context.Context) error {
	f.mu.Lock()
	f.startCalled = true
	f.mu.Unlock()

	<-ctx.Done()
	return nil
}

func (f *fakeBackground) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalled = true
	return f.stopErr
}

func (f *fakeBackground) wasStartCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalled
}

func (f *fakeBackground) wasStopCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalled
}

// createTestApp builds a MirrorApp around a mocked service and a fake poller
func createTestApp(t *testing.T, ctrl *gomock.Controller, addr string) (*MirrorApp, *fakeBackground) {
	t.Helper()

	svc := mirrormocks.NewMockService(ctrl)
	svc.EXPECT().CheckReadiness(gomock.Any()).Return(nil).AnyTimes()
	poller := &fakeBackground{}

	ctx := context.Background()
	appCtx, cancel := context.WithCancel(ctx)

	appCfg := &mirrorAppConfig{
		config:         createTestConfig(),
		address:        addr,
		requestTimeout: 10 * time.Second,
		readTimeout:    10 * time.Second,
		writeTimeout:   15 * time.Second,
		idleTimeout:    60 * time.Second,
	}

	server, err := buildHTTPServer(ctx, appCfg, svc)
	require.NoError(t, err)

	return &MirrorApp{
		config: appCfg.config,
		components: &AppComponents{
			Mirror: svc,
			Poller: poller,
		},
		httpServer: server,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, poller
}

func TestMirrorApp_StartAndStop(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	app, poller := createTestApp(t, ctrl, ":0")

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	actualAddr := listener.Addr().String()
	require.NoError(t, listener.Close())
	app.httpServer.Addr = actualAddr

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + actualAddr + "/readiness")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	assert.Eventually(t, poller.wasStartCalled, time.Second, 10*time.Millisecond, "poller should be started")

	require.NoError(t, app.Stop(5*time.Second))
	assert.True(t, poller.wasStopCalled())

	select {
	case startErr := <-errChan:
		require.NoError(t, startErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestMirrorApp_StartFailsOnBadAddress(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	ctrl := gomock.NewController(t)
	app, _ := createTestApp(t, ctrl, listener.Addr().String())

	err = app.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP server failed")
	require.NoError(t, app.Stop(time.Second))
}

func TestMirrorApp_StopWithoutStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	app, poller := createTestApp(t, ctrl, ":0")

	require.NoError(t, app.Stop(time.Second))
	assert.True(t, poller.wasStopCalled(), "poller Stop should be called even without Start")
	assert.ErrorIs(t, app.ctx.Err(), context.Canceled)
}

func TestMirrorApp_StopWithNilCancelFunc(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	app, _ := createTestApp(t, ctrl, ":0")
	app.cancelFunc = nil

	require.NoError(t, app.Stop(time.Second))
}

func TestMirrorApp_PollerStopErrorDoesNotFailStop(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	app, poller := createTestApp(t, ctrl, ":0")
	poller.stopErr = assert.AnError

	require.NoError(t, app.Stop(time.Second))
}

func TestAppComponents_Close(t *testing.T) {
	t.Parallel()

	var order []string
	components := &AppComponents{
		closers: []func() error{
			func() error { order = append(order, "first"); return nil },
			func() error { order = append(order, "second"); return assert.AnError },
		},
	}

	err := components.Close()
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"first", "second"}, order)

	// closers run once
	require.NoError(t, components.Close())
}
