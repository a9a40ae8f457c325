package annotations

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncBody(t *testing.T, req *SyncRequest) io.Reader {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	buf := bytes.Buffer{}
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestHandleSyncAnnotations(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	createTestUser(t, db, "sync-token")
	book := createTestBook(t, db)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(upstream.Close)
	e := setupTestServer(t, db, upstream)

	body := syncBody(t, &SyncRequest{
		UpdatedAnnotations: []AnnotationPayload{highlightItem("ann-1", "highlighted words")},
	})
	req := httptest.NewRequest(http.MethodPatch, "/readingservices/sync-token/api/v3/content/"+book.UUID+"/annotations", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	count, err := db.NewSelect().Model((*models.Annotation)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHandleSyncAnnotations_InvalidHighlightColor(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	createTestUser(t, db, "sync-token")
	book := createTestBook(t, db)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(upstream.Close)
	e := setupTestServer(t, db, upstream)

	item := highlightItem("ann-1", "highlighted words")
	item.HighlightColor = "rgb(255,204,0)"
	body := syncBody(t, &SyncRequest{UpdatedAnnotations: []AnnotationPayload{item}})
	req := httptest.NewRequest(http.MethodPatch, "/readingservices/sync-token/api/v3/content/"+book.UUID+"/annotations", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "not a valid color")

	count, err := db.NewSelect().Model((*models.Annotation)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHandleSyncAnnotations_UnknownBookIsRelayed(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	createTestUser(t, db, "sync-token")

	relayedPath := ""
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relayedPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(upstream.Close)
	e := setupTestServer(t, db, upstream)

	storeBookID := uuid.New().String()
	body := syncBody(t, &SyncRequest{
		UpdatedAnnotations: []AnnotationPayload{highlightItem("ann-1", "text")},
	})
	req := httptest.NewRequest(http.MethodPatch, "/readingservices/sync-token/api/v3/content/"+storeBookID+"/annotations", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/api/v3/content/"+storeBookID+"/annotations", relayedPath)

	// Nothing was stored locally.
	count, err := db.NewSelect().Model((*models.Annotation)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHandleListAnnotations(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	user := createTestUser(t, db, "list-token")
	book := createTestBook(t, db)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(upstream.Close)
	e := setupTestServer(t, db, upstream)

	svc := NewService(db)
	items := []AnnotationPayload{}
	for _, id := range []string{"ann-1", "ann-2", "ann-3"} {
		items = append(items, highlightItem(id, "text for "+id))
	}
	_, err := svc.ReconcileBatch(context.Background(), user, book, &SyncRequest{UpdatedAnnotations: items})
	require.NoError(t, err)

	t.Run("first page carries a next page token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/readingservices/list-token/api/v3/content/"+book.UUID+"/annotations?limit=2", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := ListResponse{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Annotations, 2)
		require.NotNil(t, resp.NextPageOffsetToken)
		assert.Equal(t, "2", *resp.NextPageOffsetToken)
	})

	t.Run("last page has no token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/readingservices/list-token/api/v3/content/"+book.UUID+"/annotations?limit=2&offset=2", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := ListResponse{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Annotations, 1)
		assert.Nil(t, resp.NextPageOffsetToken)
	})

	t.Run("default limit covers the whole set", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/readingservices/list-token/api/v3/content/"+book.UUID+"/annotations", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := ListResponse{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Annotations, 3)
		assert.Nil(t, resp.NextPageOffsetToken)
	})
}

func TestHandleCheckForChanges(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	createTestUser(t, db, "changes-token")
	book := createTestBook(t, db)

	upstreamBody := []byte{}
	upstreamHits := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits++
		upstreamBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"ContentId":"store-book","etag":"v2"}]`))
	}))
	t.Cleanup(upstream.Close)
	e := setupTestServer(t, db, upstream)

	t.Run("all local books are answered without upstream", func(t *testing.T) {
		body, err := json.Marshal([]ContentChange{{ContentID: book.UUID, ETag: "v1"}})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/readingservices/changes-token/api/v3/content/checkforchanges", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
		assert.Equal(t, 0, upstreamHits)
	})

	t.Run("store books are relayed without the local entries", func(t *testing.T) {
		body, err := json.Marshal([]ContentChange{
			{ContentID: book.UUID, ETag: "v1"},
			{ContentID: "store-book", ETag: "v1"},
		})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/readingservices/changes-token/api/v3/content/checkforchanges", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, upstreamHits)

		forwarded := []ContentChange{}
		require.NoError(t, json.Unmarshal(upstreamBody, &forwarded))
		require.Len(t, forwarded, 1)
		assert.Equal(t, "store-book", forwarded[0].ContentID)

		// The upstream's answer comes back to the device.
		assert.JSONEq(t, `[{"ContentId":"store-book","etag":"v2"}]`, rec.Body.String())
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/readingservices/changes-token/api/v3/content/checkforchanges", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleAttachments(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	createTestUser(t, db, "attach-token")
	book := createTestBook(t, db)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(upstream.Close)
	e := setupTestServer(t, db, upstream)

	uploadURL := "/readingservices/attach-token/api/v3/content/" + book.UUID + "/annotations/ann-1/attachments"

	upload := func(t *testing.T, filename string, data []byte) *httptest.ResponseRecorder {
		t.Helper()
		buf := bytes.Buffer{}
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("attachment", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, uploadURL, &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	t.Run("png upload round trips", func(t *testing.T) {
		data := pngBytes(t)
		rec := upload(t, "markup.png", data)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, uploadURL[len("/readingservices/attach-token"):]+"/markup.png", rec.Header().Get("Location"))
		assert.JSONEq(t, `"Attachment markup.png created."`, rec.Body.String())

		req := httptest.NewRequest(http.MethodGet, uploadURL+"/markup.png", nil)
		getRec := httptest.NewRecorder()
		e.ServeHTTP(getRec, req)

		require.Equal(t, http.StatusOK, getRec.Code)
		assert.Equal(t, "image/png", getRec.Header().Get("Content-Type"))
		assert.Equal(t, data, getRec.Body.Bytes())
	})

	t.Run("non-image upload is rejected", func(t *testing.T) {
		rec := upload(t, "notes.txt", []byte("plain text pretending to be markup"))
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("missing form file is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, uploadURL, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown attachment is not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, uploadURL+"/nope.png", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
