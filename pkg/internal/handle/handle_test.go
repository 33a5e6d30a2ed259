package handle_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/octavia/pkg/configs"
	"github.com/yeisme/octavia/pkg/internal/filestore"
	"github.com/yeisme/octavia/pkg/internal/handle"
	"github.com/yeisme/octavia/pkg/internal/lastfm"
	"github.com/yeisme/octavia/pkg/internal/metadata"
	"github.com/yeisme/octavia/pkg/internal/repository"
	"github.com/yeisme/octavia/pkg/internal/router"
	"github.com/yeisme/octavia/pkg/internal/service"
	"github.com/yeisme/octavia/pkg/internal/storage/kv"
	"github.com/yeisme/octavia/pkg/internal/types"
	"github.com/yeisme/octavia/pkg/middleware"
	"github.com/yeisme/octavia/pkg/queue"
)

const (
	missingArtwork = "/img/missing.png"
	masterKey      = "master-secret"
	maxUpload      = 64 * 1024
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	*httptest.Server
	client   *http.Client
	filesDir string
}

func newServer(t *testing.T) *testServer {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := repository.NewTrackRepository(db)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}

	filesDir := filepath.Join(t.TempDir(), "files")

	files, err := filestore.New(filesDir, filepath.Join(filesDir, ".staging"), 64)
	if err != nil {
		t.Fatal(err)
	}

	store, err := kv.NewKVStore(context.Background(), kv.KVTypeMemory, nil)
	if err != nil {
		t.Fatal(err)
	}

	svc := service.New(service.Options{
		Repo:      repo,
		Files:     files,
		Extractor: metadata.New(1024),
		Resolver:  lastfm.NewResolver(lastfm.ResolverOptions{MissingArtwork: missingArtwork, Logger: zerolog.Nop()}),
		KV:        store,
		Track: configs.TrackConfig{
			MaxUploadSize:     maxUpload,
			AllowedTypes:      []string{"audio/mpeg", "audio/mp3", "audio/x-m4a"},
			RetentionDays:     30,
			DeleteKeyLength:   8,
			MaxTagLength:      1024,
			MissingArtwork:    missingArtwork,
			SlugMaxLength:     64,
			PlaySessionTTL:    time.Hour,
			FlashTTL:          time.Minute,
			EnrichmentTimeout: time.Second,
		},
		MasterKey: masterKey,
		Logger:    zerolog.Nop(),
	})

	h := handle.New(handle.Options{
		Tracks:   svc,
		Recorder: queue.NewRecorder(10),
		DB:       pinger{},
		KV:       store,
		Logger:   zerolog.Nop(),
	})

	engine := gin.New()
	engine.Use(middleware.SessionMiddleware(middleware.SessionConfig{
		Secret: []byte("test-secret"),
		Cookie: "octavia_session",
		TTL:    time.Hour,
	}))
	router.Register(engine, h)
	router.RegisterHealthCheckRoute(engine, h)
	router.RegisterAdminRoutes(engine, h, func(c *gin.Context) { c.Next() })

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)

	return &testServer{
		Server: srv,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		filesDir: filesDir,
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

// mp3 构造带 ID3v2.3 标签的最小 MP3 数据.
func mp3(title, artist, album string) []byte {
	var body bytes.Buffer

	for _, f := range [][2]string{{"TIT2", title}, {"TPE1", artist}, {"TALB", album}} {
		if f[1] == "" {
			continue
		}

		data := append([]byte{0x00}, f[1]...)

		body.WriteString(f[0])
		_ = binary.Write(&body, binary.BigEndian, uint32(len(data)))
		body.Write([]byte{0x00, 0x00})
		body.Write(data)
	}

	size := body.Len()

	var out bytes.Buffer

	out.WriteString("ID3")
	out.Write([]byte{0x03, 0x00, 0x00})
	out.Write([]byte{byte(size >> 21 & 0x7f), byte(size >> 14 & 0x7f), byte(size >> 7 & 0x7f), byte(size & 0x7f)})
	out.Write(body.Bytes())
	out.Write(bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 64))

	return out.Bytes()
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	hdr.Set("Content-Type", contentType)

	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	return &buf, w.FormDataContentType()
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, header http.Header) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, s.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}

	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func (s *testServer) upload(t *testing.T, data []byte, contentType string, header http.Header) *http.Response {
	t.Helper()

	body, ct := multipartBody(t, "file", "My Song.mp3", contentType, data)

	if header == nil {
		header = http.Header{}
	}

	header.Set("Content-Type", ct)

	return s.do(t, http.MethodPost, "/new", body, header)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}

	return v
}

func TestUploadViewDelete(t *testing.T) {
	s := newServer(t)

	resp := s.upload(t, mp3("Song", "Band", "LP"), "audio/mpeg", nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}

	loc := resp.Header.Get("Location")
	if loc != "/1" {
		t.Fatalf("Location = %q", loc)
	}

	view := decode[types.TrackView](t, s.do(t, http.MethodGet, loc, nil, nil))
	if view.Title != "Song" || view.Artist != "Band" || view.Album != "LP" {
		t.Fatalf("view = %+v", view)
	}

	if view.Artwork != missingArtwork {
		t.Fatalf("Artwork = %q", view.Artwork)
	}

	if view.DeleteKey == "" {
		t.Fatal("first view should carry the delete key")
	}

	if view.Plays != 1 {
		t.Fatalf("Plays = %d", view.Plays)
	}

	again := decode[types.TrackView](t, s.do(t, http.MethodGet, loc, nil, nil))
	if again.DeleteKey != "" {
		t.Fatal("delete key shown twice")
	}

	if again.Plays != 1 {
		t.Fatalf("same session counted twice: %d", again.Plays)
	}

	dl := s.do(t, http.MethodGet, view.DownloadURL, nil, nil)
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dl.StatusCode)
	}

	if ct := dl.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("download Content-Type = %q", ct)
	}

	if cd := dl.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("Content-Disposition = %q", cd)
	}

	wrong := s.do(t, http.MethodDelete, loc+"?key=nope", nil, nil)
	if wrong.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong key status = %d", wrong.StatusCode)
	}

	ok := s.do(t, http.MethodDelete, loc+"?key="+view.DeleteKey, nil, nil)
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", ok.StatusCode)
	}

	if got := s.do(t, http.MethodGet, loc, nil, nil); got.StatusCode != http.StatusNotFound {
		t.Fatalf("after delete status = %d", got.StatusCode)
	}

	if got := s.do(t, http.MethodGet, view.DownloadURL, nil, nil); got.StatusCode != http.StatusNotFound {
		t.Fatalf("download after delete status = %d", got.StatusCode)
	}
}

func TestUploadJSON(t *testing.T) {
	s := newServer(t)

	resp := s.upload(t, mp3("Song", "Band", "LP"), "audio/mp3", http.Header{"Accept": {"application/json"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	up := decode[types.UploadResponse](t, resp)
	if up.ID != 1 || up.URL != "/1" || len(up.DeleteKey) != 8 {
		t.Fatalf("response = %+v", up)
	}

	list := decode[types.TrackListResponse](t, s.do(t, http.MethodGet, "/", nil, nil))
	if list.Total != 1 || list.Tracks[0].Title != "Song" {
		t.Fatalf("list = %+v", list)
	}

	del := s.do(t, http.MethodDelete, "/1?key="+masterKey, nil, nil)
	if del.StatusCode != http.StatusOK {
		t.Fatalf("master delete status = %d", del.StatusCode)
	}
}

func TestUploadRejected(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		contentType string
		status      int
		code        string
	}{
		{"unsupported type", mp3("Song", "Band", "LP"), "audio/ogg", http.StatusBadRequest, "unsupported_media_type"},
		{"unreadable", []byte("not audio at all"), "audio/mpeg", http.StatusBadRequest, "unreadable_metadata"},
		{"incomplete", mp3("Song", "", "LP"), "audio/mpeg", http.StatusBadRequest, "incomplete_metadata"},
		{"untagged", bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x64}, 64), "audio/mpeg", http.StatusBadRequest, "incomplete_metadata"},
		{"too large", bytes.Repeat([]byte{0x00}, 2*maxUpload), "audio/mpeg", http.StatusRequestEntityTooLarge, "payload_too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t)

			resp := s.upload(t, tt.data, tt.contentType, nil)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}

			body := decode[types.ErrorResponse](t, resp)
			if body.Code != tt.code {
				t.Fatalf("code = %q, want %q", body.Code, tt.code)
			}

			list := decode[types.TrackListResponse](t, s.do(t, http.MethodGet, "/", nil, nil))
			if list.Total != 0 {
				t.Fatalf("rejected upload persisted: %+v", list)
			}
		})
	}
}

func TestUploadMissingFile(t *testing.T) {
	s := newServer(t)

	body, ct := multipartBody(t, "other", "x.mp3", "audio/mpeg", mp3("Song", "Band", "LP"))

	resp := s.do(t, http.MethodPost, "/new", body, http.Header{"Content-Type": {ct}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestUploadForm(t *testing.T) {
	s := newServer(t)

	form := decode[types.UploadFormResponse](t, s.do(t, http.MethodGet, "/new", nil, nil))
	if form.Field != "file" || form.MaxUploadSize != maxUpload || len(form.AllowedTypes) != 3 {
		t.Fatalf("form = %+v", form)
	}
}

func TestShowInvalidID(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{"/abc", "/0", "/42"} {
		if got := s.do(t, http.MethodGet, path, nil, nil); got.StatusCode != http.StatusNotFound {
			t.Fatalf("%s status = %d", path, got.StatusCode)
		}
	}

	if got := s.do(t, http.MethodGet, "/files/..%2Fetc%2Fpasswd", nil, nil); got.StatusCode != http.StatusNotFound {
		t.Fatalf("traversal status = %d", got.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	if got := s.do(t, http.MethodGet, "/health/db", nil, nil); got.StatusCode != http.StatusOK {
		t.Fatalf("db status = %d", got.StatusCode)
	}

	if got := s.do(t, http.MethodGet, "/health/kv", nil, nil); got.StatusCode != http.StatusOK {
		t.Fatalf("kv status = %d", got.StatusCode)
	}

	if got := s.do(t, http.MethodGet, "/health/mq", nil, nil); got.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("mq status = %d", got.StatusCode)
	}
}

func TestAdminScavenge(t *testing.T) {
	s := newServer(t)

	resp := s.do(t, http.MethodPost, "/admin/scavenge", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	report := decode[types.ScavengeReport](t, resp)
	if report.Candidates != 0 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	jobs := s.do(t, http.MethodGet, "/admin/jobs", nil, nil)
	if jobs.StatusCode != http.StatusOK {
		t.Fatalf("jobs status = %d", jobs.StatusCode)
	}

	if events := decode[[]queue.RecordedEvent](t, s.do(t, http.MethodGet, "/admin/events", nil, nil)); len(events) != 0 {
		t.Fatalf("events = %+v", events)
	}
}

func TestUploadedFileOnDisk(t *testing.T) {
	s := newServer(t)

	s.upload(t, mp3("Song", "Band", "LP"), "audio/mpeg", nil)

	if _, err := os.Stat(filepath.Join(s.filesDir, "1-My_Song.mp3")); err != nil {
		t.Fatalf("stat: %v", err)
	}

	if _, err := os.Stat(filepath.Join(s.filesDir, "nope")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unexpected file: %v", err)
	}
}
