package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/showcase/internal/auth"
	"github.com/MrSnakeDoc/showcase/internal/catalog"
	"github.com/MrSnakeDoc/showcase/internal/domain"
	"github.com/MrSnakeDoc/showcase/internal/gallery"
	"github.com/MrSnakeDoc/showcase/internal/httpserver/deps"
	"github.com/MrSnakeDoc/showcase/internal/imaging"
	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/migrate"
	"github.com/MrSnakeDoc/showcase/internal/quota"
	"github.com/MrSnakeDoc/showcase/internal/store/memory"
)

const adminToken = "correct-horse-battery-staple"

type testServer struct {
	handler   http.Handler
	gallery   *gallery.Gallery
	kv        *memory.KV
	hitImages *imaging.DecodedCache
	cookie    *http.Cookie
}

func newTestServer(t *testing.T, burst int) *testServer {
	t.Helper()
	log := logger.NewNop()
	kv := memory.New(0)

	g := gallery.New(gallery.Options{
		Repo:   catalog.NewRepository(kv, log),
		Images: imaging.Normalizer{MaxBytes: 64 << 10, MaxDimension: 256},
		Defaults: []domain.Item{
			{ID: 1, Name: "Pen", Description: "Blue pen", Image: "/p/pen.png"},
			{ID: 2, Name: "Tea", Description: "Ginko tea", Image: "/p/tea.png"},
			{ID: 3, Name: "Bike", Description: "Yellow bike", Image: "/p/bike.png"},
		},
		Log: log,
	})
	g.Load(migrate.Outcome{Generation: migrate.GenNone})
	g.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = g.Stop(ctx)
	})

	sessions, _, err := auth.New(auth.Options{Token: adminToken, Secret: "test-secret", TTL: time.Hour})
	require.NoError(t, err)

	d := deps.Deps{
		Logger:       log,
		StartTime:    time.Now(),
		Version:      "test",
		Gallery:      g,
		Store:        kv,
		StoreBackend: "memory",
		Quota:        quota.NewEstimator(kv, 0.9, time.Second, log),
		Sessions:     sessions,
		UploadLimit:  1 << 20,
		WriteLimit:   deps.WriteLimit{Burst: burst, RefillPerMin: 1},
		HitImages:    imaging.NewDecodedCache(time.Minute),
	}
	return &testServer{handler: NewRouter(d), gallery: g, kv: kv, hitImages: d.HitImages}
}

func (s *testServer) do(t *testing.T, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// login enters admin mode the way the owner does, through ?admin=.
func (s *testServer) login(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/?admin="+adminToken, nil, "")
	require.Equal(t, http.StatusFound, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			s.cookie = c
		}
	}
	require.NotNil(t, s.cookie, "session cookie not set")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type itemsBody struct {
	Items   []domain.Item `json:"items"`
	Storage quota.Status  `json:"storage"`
}

func listIDs(t *testing.T, s *testServer) []int64 {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/items", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[itemsBody](t, rec)
	ids := make([]int64, 0, len(body.Items))
	for _, it := range body.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

func pngBytes(t *testing.T, w, h int, transparentLeft bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 200, G: 40, B: 40, A: 255}
			if transparentLeft && x < w/2 {
				c.A = 0
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, 100)
	rec := s.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestReadyzAndInfra(t *testing.T) {
	s := newTestServer(t, 100)

	rec := s.do(t, http.MethodGet, "/readyz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["ready"])

	rec = s.do(t, http.MethodGet, "/infra", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "optimal", body["mode"])
	gal := body["gallery"].(map[string]any)
	assert.Equal(t, "none", gal["generation"])
	assert.Equal(t, false, gal["materialized"])
}

func TestAdminEntry(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		location   string
		wantCookie bool
	}{
		{"valid token", "/?admin=" + adminToken, "/", true},
		{"wrong token", "/?admin=nope", "/", false},
		{"keeps other params", "/api/items?x=1&admin=" + adminToken, "/api/items?x=1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, 100)
			rec := s.do(t, http.MethodGet, tt.target, nil, "")
			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))

			got := false
			for _, c := range rec.Result().Cookies() {
				if c.Name == auth.CookieName && c.Value != "" {
					got = true
					assert.True(t, c.HttpOnly)
				}
			}
			assert.Equal(t, tt.wantCookie, got)
		})
	}
}

func TestSession(t *testing.T) {
	s := newTestServer(t, 100)

	rec := s.do(t, http.MethodGet, "/api/session", nil, "")
	assert.Equal(t, false, decode[map[string]bool](t, rec)["admin"])

	s.login(t)
	rec = s.do(t, http.MethodGet, "/api/session", nil, "")
	assert.Equal(t, true, decode[map[string]bool](t, rec)["admin"])

	rec = s.do(t, http.MethodDelete, "/api/session", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWritesRequireAdmin(t *testing.T) {
	s := newTestServer(t, 100)

	for _, req := range []struct{ method, path string }{
		{http.MethodPost, "/api/items"},
		{http.MethodPatch, "/api/items/1"},
		{http.MethodDelete, "/api/items/1"},
		{http.MethodPut, "/api/order"},
		{http.MethodPost, "/api/items/paste"},
		{http.MethodPut, "/api/items/1/image"},
		{http.MethodGet, "/api/export"},
		{http.MethodGet, "/api/notices"},
		{http.MethodPost, "/api/reset"},
	} {
		rec := s.do(t, req.method, req.path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", req.method, req.path)
	}
	assert.Equal(t, []int64{1, 2, 3}, listIDs(t, s))
}

func TestItemLifecycle(t *testing.T) {
	s := newTestServer(t, 100)
	s.login(t)

	rec := s.do(t, http.MethodPost, "/api/items", []byte(`{"name":"Lamp"}`), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[domain.Item](t, rec)
	assert.True(t, created.IsNew)
	assert.Equal(t, "Lamp", created.Name)
	assert.Equal(t, domain.DefaultDescription, created.Description)
	assert.Equal(t, []int64{1, 2, 3, created.ID}, listIDs(t, s))

	rec = s.do(t, http.MethodPatch, "/api/items/2", []byte(`{"price":" 12 EUR "}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12 EUR", decode[domain.Item](t, rec).Price)

	rec = s.do(t, http.MethodGet, "/api/items/2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12 EUR", decode[domain.Item](t, rec).Price)

	rec = s.do(t, http.MethodDelete, "/api/items/1", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/items/999", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []int64{2, 3, created.ID}, listIDs(t, s))
}

func TestItemErrors(t *testing.T) {
	s := newTestServer(t, 100)
	s.login(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"get unknown", http.MethodGet, "/api/items/999", "", http.StatusNotFound},
		{"get bad id", http.MethodGet, "/api/items/abc", "", http.StatusBadRequest},
		{"get zero id", http.MethodGet, "/api/items/0", "", http.StatusBadRequest},
		{"patch unknown", http.MethodPatch, "/api/items/999", `{"name":"x"}`, http.StatusNotFound},
		{"patch bad json", http.MethodPatch, "/api/items/1", `{"name":`, http.StatusBadRequest},
		{"patch unknown field", http.MethodPatch, "/api/items/1", `{"id":7}`, http.StatusBadRequest},
		{"create bad json", http.MethodPost, "/api/items", `[1]`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, []byte(tt.body), "application/json")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if rec.Code >= 400 {
				assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
			}
		})
	}
	assert.Equal(t, []int64{1, 2, 3}, listIDs(t, s))
}

func TestReorder(t *testing.T) {
	s := newTestServer(t, 100)
	s.login(t)

	rec := s.do(t, http.MethodPut, "/api/order", []byte(`{"order":[3,1]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPut, "/api/order", []byte(`{"order":[3,1,1]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/order", []byte(`{"order":[3,1,2]}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{3, 1, 2}, listIDs(t, s))
}

func TestPaste(t *testing.T) {
	s := newTestServer(t, 100)
	s.login(t)

	rec := s.do(t, http.MethodPost, "/api/items/paste", []byte("not an image"), "image/png")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []int64{1, 2, 3}, listIDs(t, s))

	rec = s.do(t, http.MethodPost, "/api/items/paste", pngBytes(t, 40, 30, false), "image/png")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	raw := decode[domain.Item](t, rec)
	assert.True(t, strings.HasPrefix(raw.Image, "data:image/"))
	assert.Equal(t, domain.PastedDescription, raw.Description)

	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	part, err := mpw.CreateFormFile("image", "shot.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes(t, 20, 20, false))
	require.NoError(t, err)
	require.NoError(t, mpw.Close())

	rec = s.do(t, http.MethodPost, "/api/items/paste", buf.Bytes(), mpw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Len(t, listIDs(t, s), 5)
}

func TestPasteTooLarge(t *testing.T) {
	s := newTestServer(t, 100)
	s.login(t)

	rec := s.do(t, http.MethodPost, "/api/items/paste", make([]byte, 2<<20), "image/png")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, []int64{1, 2, 3}, listIDs(t, s))
}

func TestReplaceImageAndHit(t *testing.T) {
	s := newTestServer(t, 100)
	s.login(t)

	hit := func(x, y float64) imaging.Hit {
		t.Helper()
		body, _ := json.Marshal(map[string]float64{"boxWidth": 100, "boxHeight": 100, "x": x, "y": y})
		rec := s.do(t, http.MethodPost, "/api/items/1/image/hit", body, "application/json")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[imaging.Hit](t, rec)
	}

	// URL images cannot be sampled.
	h := hit(10, 50)
	assert.True(t, h.OnImage)
	assert.False(t, h.Checked)

	rec := s.do(t, http.MethodPut, "/api/items/999/image", pngBytes(t, 10, 10, false), "image/png")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/items/1/image", pngBytes(t, 100, 100, true), "image/png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(decode[domain.Item](t, rec).Image, "data:image/png"))

	h = hit(10, 50)
	assert.True(t, h.Checked)
	assert.False(t, h.OnImage)

	h = hit(90, 50)
	assert.True(t, h.Checked)
	assert.True(t, h.OnImage)

	rec = s.do(t, http.MethodPost, "/api/items/999/image/hit", []byte(`{"boxWidth":1,"boxHeight":1,"x":0,"y":0}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImageHitDecodesEachImageOnce(t *testing.T) {
	s := newTestServer(t, 100)
	s.login(t)

	hit := func(x float64) imaging.Hit {
		t.Helper()
		body, _ := json.Marshal(map[string]float64{"boxWidth": 100, "boxHeight": 100, "x": x, "y": 50})
		rec := s.do(t, http.MethodPost, "/api/items/1/image/hit", body, "application/json")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[imaging.Hit](t, rec)
	}

	rec := s.do(t, http.MethodPut, "/api/items/1/image", pngBytes(t, 100, 100, true), "image/png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for i := 0; i < 20; i++ {
		assert.False(t, hit(10).OnImage)
	}
	assert.True(t, hit(90).OnImage)
	assert.EqualValues(t, 1, s.hitImages.Decodes())

	// a replaced image is decoded afresh, not served from the old entry
	rec = s.do(t, http.MethodPut, "/api/items/1/image", pngBytes(t, 100, 100, false), "image/png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, hit(10).OnImage)
	assert.EqualValues(t, 2, s.hitImages.Decodes())
}

func TestExport(t *testing.T) {
	s := newTestServer(t, 100)
	s.login(t)

	rec := s.do(t, http.MethodPost, "/api/items", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "isNew")
	assert.Contains(t, rec.Body.String(), "\n  {")
	assert.Len(t, decode[[]domain.Item](t, rec), 4)

	rec = s.do(t, http.MethodGet, "/api/export/schema", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "array", decode[map[string]any](t, rec)["type"])
}

func TestStorageAndNotices(t *testing.T) {
	s := newTestServer(t, 100)
	s.login(t)

	rec := s.do(t, http.MethodGet, "/api/storage", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["known"])

	rec = s.do(t, http.MethodGet, "/api/notices?after=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.gallery.Notices().Push(gallery.KindStorageWrite, "save_item failed: boom")
	rec = s.do(t, http.MethodGet, "/api/notices?after=0", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Notices []gallery.Notice `json:"notices"`
		Last    uint64           `json:"last"`
	}](t, rec)
	require.Len(t, body.Notices, 1)
	assert.Equal(t, body.Notices[0].Seq, body.Last)

	rec = s.do(t, http.MethodGet, "/api/notices?after=1", nil, "")
	assert.Contains(t, rec.Body.String(), `"notices":[]`)
}

func TestReset(t *testing.T) {
	s := newTestServer(t, 100)
	s.login(t)

	rec := s.do(t, http.MethodDelete, "/api/items/2", nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, s.gallery.Flush(context.Background()))
	_, ok, _ := s.kv.Get(context.Background(), catalog.OrderKey)
	require.True(t, ok)

	rec = s.do(t, http.MethodPost, "/api/reset", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[map[string]int](t, rec)["items"])
	assert.Equal(t, []int64{1, 2, 3}, listIDs(t, s))

	_, ok, _ = s.kv.Get(context.Background(), catalog.OrderKey)
	assert.False(t, ok)
}

func TestWriteRateLimit(t *testing.T) {
	s := newTestServer(t, 1)
	s.login(t)

	rec := s.do(t, http.MethodPost, "/api/items", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/items", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// reads are not limited
	assert.Len(t, listIDs(t, s), 4)
}
