package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanlink/humanlink/internal/common/logger"
	"github.com/humanlink/humanlink/internal/interaction"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text"})
	require.NoError(t, err)
	return log
}

func newTestAPI(t *testing.T) (*Web, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := testLogger(t)
	hub := NewHub(log)
	channel := NewChannel(hub, log)

	router := gin.New()
	RegisterRoutes(router, channel, hub, log)
	return channel, router
}

func respond(router *gin.Engine, id string, body RespondBody) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interactions/"+id+"/respond", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// pendingID polls until one dialog is pending and returns its id.
func pendingID(t *testing.T, channel *Web) string {
	t.Helper()
	var id string
	require.Eventually(t, func() bool {
		views := channel.Store().List()
		if len(views) == 0 {
			return false
		}
		id = views[0].ID
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return id
}

func TestRespondResolvesRender(t *testing.T) {
	channel, router := newTestAPI(t)

	respCh := make(chan *interaction.Response, 1)
	go func() {
		resp, _ := channel.Render(context.Background(), &interaction.Request{
			Message: "Ship it?",
			Type:    interaction.TypeConfirm,
			Options: []interaction.Option{
				{Label: "Yes", Value: "yes"},
				{Label: "No", Value: "no"},
			},
		})
		respCh <- resp
	}()

	id := pendingID(t, channel)
	rec := respond(router, id, RespondBody{SelectedValues: []string{"yes"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case resp := <-respCh:
		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		assert.Equal(t, []string{"yes"}, resp.SelectedValues)
	case <-time.After(2 * time.Second):
		t.Fatal("render did not complete")
	}

	// The dialog is gone once resolved.
	assert.Empty(t, channel.Store().List())
}

func TestRespondUnknownID(t *testing.T) {
	_, router := newTestAPI(t)
	rec := respond(router, "missing", RespondBody{SelectedValues: []string{"yes"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRespondConflictOnSecondAnswer(t *testing.T) {
	channel, router := newTestAPI(t)

	// Register a dialog without a waiting renderer so the store entry stays
	// put between the two responds.
	d := channel.Store().Create(&interaction.Request{
		Message: "Ship it?",
		Type:    interaction.TypeConfirm,
		Options: []interaction.Option{{Label: "Yes", Value: "yes"}},
	})

	first := respond(router, d.ID, RespondBody{SelectedValues: []string{"yes"}})
	assert.Equal(t, http.StatusOK, first.Code)

	second := respond(router, d.ID, RespondBody{SelectedValues: []string{"yes"}})
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestRespondValidation(t *testing.T) {
	channel, router := newTestAPI(t)

	d := channel.Store().Create(&interaction.Request{
		Message:       "Pick platforms",
		Type:          interaction.TypeMultiChoice,
		MinSelections: 2,
		Options: []interaction.Option{
			{Label: "Linux", Value: "linux"},
			{Label: "macOS", Value: "mac"},
		},
	})

	rec := respond(router, d.ID, RespondBody{SelectedValues: []string{"linux"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = respond(router, d.ID, RespondBody{SelectedValues: []string{"linux", "mac"}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListPending(t *testing.T) {
	channel, router := newTestAPI(t)
	channel.Store().Create(&interaction.Request{Message: "one", Type: interaction.TypeNotify})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/interactions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Interactions []PendingView `json:"interactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Interactions, 1)
	assert.Equal(t, "one", body.Interactions[0].Request.Message)
}

func TestBuildResponse(t *testing.T) {
	t.Run("cancel honored only when cancellable", func(t *testing.T) {
		req := &interaction.Request{Message: "x", Type: interaction.TypeNotify}
		_, err := buildResponse(req, &RespondBody{Cancelled: true})
		assert.Error(t, err)

		req.IsCancellable = true
		resp, err := buildResponse(req, &RespondBody{Cancelled: true})
		require.NoError(t, err)
		assert.True(t, resp.Cancelled)
		assert.False(t, resp.TimedOut)
	})

	t.Run("single choice needs exactly one value", func(t *testing.T) {
		req := &interaction.Request{
			Message: "Pick",
			Type:    interaction.TypeSingleChoice,
			Options: []interaction.Option{{Label: "A", Value: "a"}, {Label: "B", Value: "b"}},
		}
		_, err := buildResponse(req, &RespondBody{SelectedValues: []string{"a", "b"}})
		assert.Error(t, err)

		resp, err := buildResponse(req, &RespondBody{SelectedValues: []string{"a"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, resp.SelectedValues)
	})

	t.Run("custom input wins over selection", func(t *testing.T) {
		req := &interaction.Request{
			Message:          "Pick a color",
			Type:             interaction.TypeChoiceWithText,
			AllowCustomInput: true,
			Options:          []interaction.Option{{Label: "Red", Value: "red"}},
		}
		resp, err := buildResponse(req, &RespondBody{CustomInput: "teal", SelectedValues: []string{"red"}})
		require.NoError(t, err)
		assert.Equal(t, "teal", resp.CustomInput)
		assert.Equal(t, []string{"teal"}, resp.SelectedValues)
	})

	t.Run("text input", func(t *testing.T) {
		req := &interaction.Request{Message: "Name it", Type: interaction.TypeTextInput}
		resp, err := buildResponse(req, &RespondBody{TextValue: "aurora"})
		require.NoError(t, err)
		assert.Equal(t, "aurora", resp.TextValue)
	})
}
