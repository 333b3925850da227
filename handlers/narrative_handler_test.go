package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/tier-router/internal/narrative"
	"github.com/upb/tier-router/utils"
)

type fakeTemplates map[string]*narrative.Template

func (f fakeTemplates) Load(modality, lang string) (*narrative.Template, error) {
	if tpl, ok := f[modality]; ok {
		return tpl, nil
	}
	return nil, narrative.ErrTemplateNotFound
}

func octTemplate() *narrative.Template {
	return &narrative.Template{
		Modality: "oct",
		Version:  "1.0.0",
		Steps: map[string]narrative.TemplateStep{
			"check_in": {
				Text:    "You're checked in for your eye scan.",
				Icon:    "clipboard",
				Privacy: narrative.BadgeProcessingLocal,
			},
			"cloud_analysis": {
				Text:    "A specialist model is reviewing the summary.",
				Icon:    "cloud",
				Privacy: narrative.BadgeCloudProcessing,
				ETAHint: "about a minute",
			},
		},
	}
}

func newNarrativeServer(t *testing.T) *httptest.Server {
	t.Helper()
	// Hijacked connections can outlive the test, so the handler must not log through t.
	h := NewNarrativeHandler(fakeTemplates{"oct": octTemplate()}, NarrativeOptions{}, zap.NewNop())

	r := chi.NewRouter()
	r.Get("/ws/narrative", h.HandleStream)
	r.Post("/narrative/{modality}/events", h.HandleEvent)
	r.Post("/narrative/{modality}/events:batch", h.HandleEventBatch)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/narrative" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestNarrativeHandler_HandleStream(t *testing.T) {
	ts := newNarrativeServer(t)

	t.Run("renders each event and keeps the connection open", func(t *testing.T) {
		conn := dial(t, ts, "?sessionId=s-1")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		require.NoError(t, wsjson.Write(ctx, conn, map[string]interface{}{"step": "check_in", "progress": 5}))
		var first narrative.NarrativeEvent
		require.NoError(t, wsjson.Read(ctx, conn, &first))
		assert.Equal(t, "check_in", first.Step)
		assert.Equal(t, "You're checked in for your eye scan.", first.PlainText)
		assert.Equal(t, 5, first.Progress)
		assert.Equal(t, narrative.BadgeProcessingLocal, first.PrivacyBadge)

		require.NoError(t, wsjson.Write(ctx, conn, map[string]interface{}{"step": "cloud_analysis"}))
		var second narrative.NarrativeEvent
		require.NoError(t, wsjson.Read(ctx, conn, &second))
		assert.Equal(t, 0, second.Progress)
		assert.Equal(t, narrative.BadgeCloudProcessing, second.PrivacyBadge)
		assert.Equal(t, "about a minute", second.ETAHint)

		require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	})

	t.Run("unknown step yields an error frame", func(t *testing.T) {
		conn := dial(t, ts, "?sessionId=s-2&modality=oct")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		require.NoError(t, wsjson.Write(ctx, conn, map[string]interface{}{"step": "teleport"}))
		var frame ErrorFrame
		require.NoError(t, wsjson.Read(ctx, conn, &frame))
		assert.Equal(t, "teleport", frame.Step)
		assert.Contains(t, frame.Error, "step not found")

		// Still usable afterwards.
		require.NoError(t, wsjson.Write(ctx, conn, map[string]interface{}{"step": "check_in"}))
		var ev narrative.NarrativeEvent
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		assert.Equal(t, "check_in", ev.Step)
	})

	t.Run("malformed frames yield error frames", func(t *testing.T) {
		conn := dial(t, ts, "?sessionId=s-3")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for _, raw := range []string{`not json`, `{"progress":10}`, `{"step":"check_in","progress":140}`} {
			require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(raw)))
			var frame ErrorFrame
			require.NoError(t, wsjson.Read(ctx, conn, &frame), raw)
			assert.NotEmpty(t, frame.Error, raw)
		}
	})

	t.Run("binary frames are refused", func(t *testing.T) {
		conn := dial(t, ts, "?sessionId=s-4")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{0x01}))
		var frame ErrorFrame
		require.NoError(t, wsjson.Read(ctx, conn, &frame))
		assert.Equal(t, "only text frames are accepted", frame.Error)
	})

	t.Run("missing session id closes with policy violation", func(t *testing.T) {
		conn := dial(t, ts, "?modality=oct")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, _, err := conn.Read(ctx)
		require.Error(t, err)
		assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	})

	t.Run("unknown modality closes with internal error", func(t *testing.T) {
		conn := dial(t, ts, "?sessionId=s-5&modality=mri")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, _, err := conn.Read(ctx)
		require.Error(t, err)
		assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))
		var ce websocket.CloseError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "template not found for mri", ce.Reason)
	})
}

func TestNarrativeHandler_HandleEvent(t *testing.T) {
	ts := newNarrativeServer(t)

	post := func(path, body string) *http.Response {
		resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader([]byte(body)))
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("renders one event", func(t *testing.T) {
		resp := post("/narrative/oct/events", `{"step":"check_in","progress":10,"privacy":"sending_summary"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var response struct {
			Data narrative.NarrativeEvent `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
		assert.Equal(t, 10, response.Data.Progress)
		assert.Equal(t, narrative.BadgeSendingSummary, response.Data.PrivacyBadge)
	})

	t.Run("unknown modality", func(t *testing.T) {
		resp := post("/narrative/mri/events", `{"step":"check_in"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown step", func(t *testing.T) {
		resp := post("/narrative/oct/events", `{"step":"teleport"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing step", func(t *testing.T) {
		resp := post("/narrative/oct/events", `{"progress":3}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
		assert.Equal(t, "step is required", response.Details["step"])
	})

	t.Run("unknown badge", func(t *testing.T) {
		resp := post("/narrative/oct/events", `{"step":"check_in","privacy":"on_mars"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestNarrativeHandler_HandleEventBatch(t *testing.T) {
	ts := newNarrativeServer(t)

	t.Run("renders in order", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/narrative/oct/events:batch", "application/json",
			bytes.NewReader([]byte(`[{"step":"check_in"},{"step":"cloud_analysis","progress":90}]`)))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var response struct {
			Data []narrative.NarrativeEvent `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
		require.Len(t, response.Data, 2)
		assert.Equal(t, "check_in", response.Data[0].Step)
		assert.Equal(t, 90, response.Data[1].Progress)
	})

	t.Run("one bad step fails the batch", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/narrative/oct/events:batch", "application/json",
			bytes.NewReader([]byte(`[{"step":"check_in"},{"step":"teleport"}]`)))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty batch", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/narrative/oct/events:batch", "application/json",
			bytes.NewReader([]byte(`[]`)))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
