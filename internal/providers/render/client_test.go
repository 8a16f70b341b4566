package render

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelshoot/internal/domain"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Options{APIKey: "secret", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c
}

func sampleRequest() Request {
	return Request{JobID: "job-1", Kind: domain.JobKindAvatar, InputRef: "garments/a.png", TargetRef: "avatar-3"}
}

func TestRenderInlineImage(t *testing.T) {
	png, err := Synthetic{Size: 4}.Render(context.Background(), sampleRequest())
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/renders", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body renderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "avatar", body.Mode)
		assert.Equal(t, "garments/a.png", body.Garment)

		resp := renderResponse{RequestID: "r-1"}
		resp.Output.ImageData = base64.StdEncoding.EncodeToString(png.Data)
		resp.Output.MIMEType = "image/png"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv).Render(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, png.Data, out.Data)
	assert.Equal(t, "image/png", out.MIME)
	assert.Equal(t, 4, out.Width)
}

func TestRenderDownloadsImageURL(t *testing.T) {
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/v1/renders", func(w http.ResponseWriter, r *http.Request) {
		resp := renderResponse{}
		resp.Output.ImageURL = base + "/files/out.jpg"
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/files/out.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	out, err := newTestClient(t, srv).Render(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), out.Data)
	assert.Equal(t, "image/jpeg", out.MIME)
}

func TestRenderClassifiesHTTPErrors(t *testing.T) {
	cases := []struct {
		status int
		class  domain.FailureClass
		code   domain.FailureCode
	}{
		{http.StatusServiceUnavailable, domain.FailureTransient, domain.FailureUpstreamUnavailable},
		{http.StatusTooManyRequests, domain.FailureTransient, domain.FailureUpstreamUnavailable},
		{http.StatusGatewayTimeout, domain.FailureTransient, domain.FailureUpstreamTimeout},
		{http.StatusUnprocessableEntity, domain.FailurePermanent, domain.FailureInvalidInput},
		{http.StatusForbidden, domain.FailurePermanent, domain.FailureUpstreamRejected},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"code":"upstream","message":"nope"}`))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Render(context.Background(), sampleRequest())
			var rerr *Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, tc.status, rerr.StatusCode)
			assert.Equal(t, "nope", rerr.Message)

			f := Classify(err)
			assert.Equal(t, tc.class, f.Class)
			assert.Equal(t, tc.code, f.Code)
		})
	}
}

func TestRenderTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv).Render(ctx, sampleRequest())
	require.Error(t, err)
	f := Classify(err)
	assert.Equal(t, domain.FailureTransient, f.Class)
	assert.Equal(t, domain.FailureUpstreamTimeout, f.Code)
}

func TestRenderRequiresCredentials(t *testing.T) {
	c, err := NewClient(Options{BaseURL: "http://render.invalid"})
	require.NoError(t, err)
	_, err = c.Render(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestSyntheticIsDeterministic(t *testing.T) {
	a, err := Synthetic{}.Render(context.Background(), sampleRequest())
	require.NoError(t, err)
	b, err := Synthetic{}.Render(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)

	_, err = Synthetic{}.Render(context.Background(), Request{Kind: domain.JobKindAvatar})
	assert.Equal(t, domain.FailurePermanent, Classify(err).Class)
}
