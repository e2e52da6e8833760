package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/backend/internal/desktop"
	"github.com/deskpilot/backend/internal/domain/action"
	"github.com/deskpilot/backend/internal/domain/activity"
	"github.com/deskpilot/backend/internal/domain/autonomy"
	"github.com/deskpilot/backend/internal/domain/executor"
	"github.com/deskpilot/backend/internal/domain/safety"
	"github.com/deskpilot/backend/internal/infrastructure/logging"
)

type fakeExec struct {
	actions []action.Action
	result  *executor.Result
	err     error
}

func (f *fakeExec) Execute(ctx context.Context, a action.Action) (*executor.Result, error) {
	f.actions = append(f.actions, a)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &executor.Result{}, nil
}

type fakeCapture struct {
	image []byte
	err   error
}

func (f *fakeCapture) Capture(ctx context.Context) ([]byte, error) {
	return f.image, f.err
}

type fakeLoop struct {
	state       autonomy.State
	startErr    error
	stopErr     error
	started     []autonomy.Task
	interrupted bool
}

func (f *fakeLoop) Start(task autonomy.Task) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, task)
	f.state = autonomy.StateRunning
	return nil
}

func (f *fakeLoop) RequestStop() error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.state = autonomy.StateStoppingRequested
	return nil
}

func (f *fakeLoop) Interrupt()            { f.interrupted = true }
func (f *fakeLoop) State() autonomy.State { return f.state }
func (f *fakeLoop) Steps() int            { return 0 }
func (f *fakeLoop) Task() autonomy.Task   { return autonomy.Task{} }

type fixture struct {
	exec     *fakeExec
	capture  *fakeCapture
	loop     *fakeLoop
	governor *safety.Governor
	log      *activity.Log
	router   *gin.Engine
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)

	f := &fixture{
		exec:     &fakeExec{},
		capture:  &fakeCapture{image: []byte("png")},
		loop:     &fakeLoop{},
		governor: safety.NewGovernor(safety.DefaultPolicy()),
		log:      activity.NewLog(),
	}
	h := NewHandlers(f.exec, f.capture, f.loop, f.governor, f.log, logging.NewNop(), 10)

	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)
	r.POST("/move", h.Move)
	r.POST("/click", h.Click)
	r.POST("/type", h.Type)
	r.POST("/key", h.Key)
	r.GET("/windows", h.Windows)
	r.POST("/activate", h.Activate)
	r.GET("/screenshot", h.Screenshot)
	r.GET("/activity", h.Activity)
	r.POST("/start-autonomy", h.StartAutonomy)
	r.POST("/stop-autonomy", h.StopAutonomy)
	r.POST("/emergency-stop", h.EmergencyStop)
	r.POST("/emergency-stop/reset", h.ResetEmergencyStop)
	f.router = r
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestMoveEndpoint(t *testing.T) {
	f := newFixture()

	w := f.do("POST", "/move", gin.H{"x": 100, "y": 250})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, f.exec.actions, 1)
	a := f.exec.actions[0]
	assert.Equal(t, action.KindMove, a.Kind)
	assert.Equal(t, 100, a.X)
	assert.Equal(t, 250, a.Y)
	assert.Equal(t, action.SourceAPI, a.Source)
}

func TestMoveAcceptsOrigin(t *testing.T) {
	f := newFixture()

	// (0,0) is a valid target; required-field binding must not reject it.
	w := f.do("POST", "/move", gin.H{"x": 0, "y": 0})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMoveRejectsMissingCoordinates(t *testing.T) {
	f := newFixture()

	w := f.do("POST", "/move", gin.H{"x": 100})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.exec.actions, "invalid input must not reach the executor")
}

func TestClickDefaults(t *testing.T) {
	f := newFixture()

	w := f.do("POST", "/click", nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, f.exec.actions, 1)
	assert.Equal(t, action.KindClick, f.exec.actions[0].Kind)
	assert.Equal(t, 1, f.exec.actions[0].Button)
}

func TestClickRejectsHalfCoordinates(t *testing.T) {
	f := newFixture()

	w := f.do("POST", "/click", gin.H{"x": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClickRejectsBogusButton(t *testing.T) {
	f := newFixture()

	w := f.do("POST", "/click", gin.H{"button": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVetoMapsToForbidden(t *testing.T) {
	f := newFixture()
	f.exec.err = &safety.VetoError{Reason: safety.ReasonRestrictedZone}

	w := f.do("POST", "/click", gin.H{"x": 5, "y": 5})
	require.Equal(t, http.StatusForbidden, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "restricted_zone", resp["reason"])
}

func TestDeviceErrorMapsToBadGateway(t *testing.T) {
	f := newFixture()
	f.exec.err = &desktop.DeviceError{Op: "type", Err: assert.AnError}

	w := f.do("POST", "/type", gin.H{"text": "hello"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestWindowsEndpoint(t *testing.T) {
	f := newFixture()
	f.exec.result = &executor.Result{Windows: []desktop.Window{
		{ID: "0x1", Title: "Editor"},
		{ID: "0x2", Title: "Browser"},
	}}

	w := f.do("GET", "/windows", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Windows []desktop.Window `json:"windows"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "Editor", resp.Windows[0].Title)
}

func TestScreenshotEndpoint(t *testing.T) {
	f := newFixture()
	f.capture.image = []byte("fake png bytes")

	w := f.do("GET", "/screenshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "fake png bytes", w.Body.String())

	// The capture still lands in the audit trail.
	require.Equal(t, 1, f.log.Len())
	r := f.log.Recent(1)[0]
	assert.Equal(t, activity.OutcomeExecuted, r.Outcome)
	assert.Equal(t, len("fake png bytes"), r.ScreenshotSize)
}

func TestScreenshotFailure(t *testing.T) {
	f := newFixture()
	f.capture.err = &desktop.CaptureError{Err: assert.AnError}

	w := f.do("GET", "/screenshot", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, f.log.Len())
	assert.Equal(t, activity.OutcomeFailed, f.log.Recent(1)[0].Outcome)
}

func TestActivityEndpoint(t *testing.T) {
	f := newFixture()
	f.log.Append(activity.NewDecisionRecord("noop", "one"))
	f.log.Append(activity.NewDecisionRecord("noop", "two"))
	f.log.Append(activity.NewDecisionRecord("noop", "three"))

	w := f.do("GET", "/activity?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Records []activity.Record `json:"records"`
		Count   int               `json:"count"`
		Total   int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, "two", resp.Records[0].Reasoning)

	w = f.do("GET", "/activity?limit=banana", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartAutonomy(t *testing.T) {
	f := newFixture()

	w := f.do("POST", "/start-autonomy", gin.H{"goal": "open the browser", "step_budget": 5})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, f.loop.started, 1)
	assert.Equal(t, "open the browser", f.loop.started[0].Goal)
	assert.Equal(t, 5, f.loop.started[0].StepBudget)

	// Control events are audited.
	require.Equal(t, 1, f.log.Len())
	assert.Equal(t, "autonomy_started", f.log.Recent(1)[0].Control)
}

func TestStartAutonomyDefaultsBudget(t *testing.T) {
	f := newFixture()

	w := f.do("POST", "/start-autonomy", gin.H{"goal": "g"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, f.loop.started[0].StepBudget)
}

func TestStartAutonomyRequiresGoal(t *testing.T) {
	f := newFixture()

	w := f.do("POST", "/start-autonomy", gin.H{"step_budget": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.loop.started)
}

func TestStartAutonomyConflict(t *testing.T) {
	f := newFixture()
	f.loop.startErr = autonomy.ErrInvalidState

	w := f.do("POST", "/start-autonomy", gin.H{"goal": "g"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, f.log.Len(), "rejected transitions must not be audited as started")
}

func TestStopAutonomyConflict(t *testing.T) {
	f := newFixture()
	f.loop.stopErr = autonomy.ErrInvalidState

	w := f.do("POST", "/stop-autonomy", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEmergencyStopAlwaysSucceeds(t *testing.T) {
	f := newFixture()

	w := f.do("POST", "/emergency-stop", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.True(t, f.governor.EmergencyStopped())
	assert.True(t, f.loop.interrupted)
	require.Equal(t, 1, f.log.Len())
	assert.Equal(t, "emergency_stop", f.log.Recent(1)[0].Control)

	// Idempotent.
	w = f.do("POST", "/emergency-stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do("POST", "/emergency-stop/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.governor.EmergencyStopped())
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture()
	f.governor.TriggerEmergencyStop()

	w := f.do("GET", "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Autonomy      string `json:"autonomy"`
		EmergencyStop bool   `json:"emergency_stop"`
		Rate          struct {
			Used int `json:"used"`
			Max  int `json:"max"`
		} `json:"rate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "idle", resp.Autonomy)
	assert.True(t, resp.EmergencyStop)
	assert.Equal(t, 30, resp.Rate.Max)
}
