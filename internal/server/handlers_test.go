package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/conneroisu/comicshare/internal/access"
	"github.com/conneroisu/comicshare/internal/catalog"
	"github.com/conneroisu/comicshare/internal/config"
	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/conneroisu/comicshare/internal/imaging"
	"github.com/conneroisu/comicshare/internal/provider"
	"github.com/conneroisu/comicshare/internal/share"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	privateClient = "127.0.0.1:40000"
	publicClient  = "8.8.8.8:40000"
)

// fakeProvider serves a fixed set of encoded pages.
type fakeProvider struct {
	pages  [][]byte
	closed atomic.Bool
}

func (p *fakeProvider) Count() int { return len(p.pages) }

func (p *fakeProvider) Page(_ context.Context, index int) ([]byte, error) {
	if index < 0 || index >= len(p.pages) {
		return nil, errors.NewTransientError(errors.ErrCodePageRange, "page index out of range", nil)
	}
	return p.pages[index], nil
}

func (p *fakeProvider) Close() error {
	p.closed.Store(true)
	return nil
}

type fixture struct {
	catalog *catalog.Catalog
	book    uuid.UUID
	other   uuid.UUID
	list    uuid.UUID
	page    []byte

	mutex  sync.Mutex
	opened []*fakeProvider
}

func pngPage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 3), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		catalog: catalog.New(uuid.New(), "Home"),
		page:    pngPage(t, 40, 80),
	}
	f.book = f.catalog.Add(&catalog.Book{ID: uuid.New(), FilePath: "/comics/a.cbz", Title: "Alpha"})
	f.other = f.catalog.Add(&catalog.Book{ID: uuid.New(), FilePath: "/comics/b.cbz", Title: "Beta"})
	f.list = uuid.New()
	f.catalog.AddList(catalog.NewIDList(f.list, "Favourites", f.book))
	return f
}

func (f *fixture) open(path string) (provider.Provider, error) {
	if path == "/comics/missing.cbz" {
		return nil, errors.NewTransientError(errors.ErrCodeProviderOpen, "cannot open", nil)
	}
	p := &fakeProvider{pages: [][]byte{f.page, f.page, f.page}}
	f.mutex.Lock()
	f.opened = append(f.opened, p)
	f.mutex.Unlock()
	return p, nil
}

func (f *fixture) openedProviders() []*fakeProvider {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]*fakeProvider(nil), f.opened...)
}

func shareConfig(name string) config.ShareConfig {
	return config.ShareConfig{
		Name:             name,
		Mode:             share.ModeAll,
		PageQuality:      100,
		ThumbnailQuality: 100,
	}
}

func (f *fixture) service(t *testing.T, cfg config.ShareConfig, tune ...func(*ServiceOptions)) *Service {
	t.Helper()
	opts := ServiceOptions{
		Share:           cfg,
		Catalog:         f.catalog,
		PagePool:        imaging.NewMemoryPagePool(8),
		ThumbnailPool:   imaging.NewMemoryThumbnailPool(8, nil),
		ThumbnailHeight: 20,
		Open:            f.open,
	}
	for _, fn := range tune {
		fn(&opts)
	}
	svc, err := NewService(opts)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func contextWithClient(addr string) context.Context {
	return access.WithClientAddr(context.Background(), netip.MustParseAddrPort(addr).Addr())
}

type requestOption func(r *http.Request)

func from(addr string) requestOption {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func plaintext() requestOption {
	return func(r *http.Request) { r.TLS = nil }
}

func header(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func basicAuth(user, password string) requestOption {
	return func(r *http.Request) { r.SetBasicAuth(user, password) }
}

func serve(h http.Handler, method, target string, body io.Reader, opts ...requestOption) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, body)
	r.RemoteAddr = privateClient
	r.TLS = &tls.ConnectionState{}
	for _, opt := range opts {
		opt(r)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestInfo(t *testing.T) {
	f := newFixture(t)
	cfg := shareConfig("library")
	cfg.Description = "My comics"
	svc := f.service(t, cfg)

	w := serve(svc.Handler(), http.MethodGet, "/library/Info", nil, plaintext())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	var info Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, svc.ID, info.ID)
	assert.Equal(t, "library", info.Name)
	assert.Equal(t, "My comics", info.Description)
	assert.Equal(t, []string{}, info.Options)

	client, ok := svc.Stats().Client("127.0.0.1")
	require.True(t, ok)
	assert.Equal(t, int64(1), client.InfoRequests)
	assert.Equal(t, int64(w.Body.Len()), client.BytesServed)
}

func TestInfoStatusPage(t *testing.T) {
	f := newFixture(t)
	cfg := shareConfig("library")
	cfg.Description = "<b>bold</b>"
	svc := f.service(t, cfg)

	w := serve(svc.Handler(), http.MethodGet, "/library/Info", nil, header("Accept", "text/html"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<h1>library</h1>")
	assert.Contains(t, w.Body.String(), "&lt;b&gt;bold&lt;/b&gt;")
	assert.NotContains(t, w.Body.String(), "<b>bold</b>")
}

func TestPrivateOnlyShareRejectsPublicClients(t *testing.T) {
	f := newFixture(t)
	cfg := shareConfig("library")
	cfg.PrivateOnly = true
	svc := f.service(t, cfg)
	h := svc.Handler()

	routes := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/library/Info"},
		{http.MethodGet, "/library/Library/library"},
		{http.MethodGet, "/library/Library/books/" + f.book.String() + "/count"},
		{http.MethodGet, "/library/Library/books/" + f.book.String() + "/pages/0"},
		{http.MethodGet, "/library/Library/books/" + f.book.String() + "/thumbnails/0"},
		{http.MethodGet, "/library/Library/stats"},
	}

	for _, route := range routes {
		t.Run(route.target, func(t *testing.T) {
			w := serve(h, route.method, route.target, nil, from(publicClient))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	w := serve(h, http.MethodGet, "/library/Info", nil, from("192.168.1.20:5000"))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Empty(t, f.openedProviders(), "denied calls never open content")
	_, ok := svc.Stats().Client("8.8.8.8")
	assert.False(t, ok, "denied calls are not accounted")
}

func TestLibraryRequiresTLS(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, shareConfig("library"))

	w := serve(svc.Handler(), http.MethodGet, "/library/Library/library", nil, plaintext())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLibraryBasicAuth(t *testing.T) {
	f := newFixture(t)
	cfg := shareConfig("library")
	cfg.Password = "secret"
	svc := f.service(t, cfg)
	h := svc.Handler()
	target := "/library/Library/library"

	w := serve(h, http.MethodGet, target, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), `Basic realm="library"`)

	w = serve(h, http.MethodGet, target, nil, basicAuth("peer", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(h, http.MethodGet, target, nil, basicAuth("anyone", "secret"))
	assert.Equal(t, http.StatusOK, w.Code)

	// Info needs no credentials.
	w = serve(h, http.MethodGet, "/library/Info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLibrarySnapshot(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, shareConfig("library"))
	h := svc.Handler()

	w := serve(h, http.MethodGet, "/library/Library/library", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/cbor", w.Header().Get("Content-Type"))
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	codec, err := catalog.NewCBORCodec()
	require.NoError(t, err)
	doc, err := codec.Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, f.catalog.ID, doc.ID)
	assert.Len(t, doc.Books, 2)

	w = serve(h, http.MethodGet, "/library/Library/library", nil, header("If-None-Match", etag))
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Zero(t, w.Body.Len())

	f.catalog.Add(&catalog.Book{ID: uuid.New(), FilePath: "/comics/c.cbz"})
	w = serve(h, http.MethodGet, "/library/Library/library", nil, header("If-None-Match", etag))
	assert.Equal(t, http.StatusOK, w.Code, "a changed catalog gets a new ETag")
	assert.NotEqual(t, etag, w.Header().Get("ETag"))

	client, ok := svc.Stats().Client("127.0.0.1")
	require.True(t, ok)
	assert.Equal(t, int64(3), client.LibraryRequests)
}

func TestLibrarySnapshotZstd(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, shareConfig("library"))
	h := svc.Handler()

	plain := serve(h, http.MethodGet, "/library/Library/library", nil)
	require.Equal(t, http.StatusOK, plain.Code)

	w := serve(h, http.MethodGet, "/library/Library/library", nil, header("Accept-Encoding", "gzip, zstd"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "zstd", w.Header().Get("Content-Encoding"))
	assert.Equal(t, plain.Header().Get("ETag"), w.Header().Get("ETag"))

	decoder, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer decoder.Close()
	decoded, err := decoder.DecodeAll(w.Body.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, plain.Body.Bytes(), decoded)
}

func TestSelectedShareSnapshot(t *testing.T) {
	f := newFixture(t)
	cfg := shareConfig("friends")
	cfg.Mode = share.ModeSelected
	cfg.SharedLists = []string{f.list.String()}
	svc := f.service(t, cfg)

	doc, err := svc.Library(contextWithClient(privateClient))
	require.NoError(t, err)
	require.Len(t, doc.Books, 1)
	assert.Equal(t, f.book, doc.Books[0].ID)
	require.Len(t, doc.Lists, 1)
	assert.Equal(t, catalog.ListIDs, doc.Lists[0].Kind)

	w := serve(svc.Handler(), http.MethodGet, "/friends/Library/books/"+f.other.String()+"/pages/0", nil)
	assert.Equal(t, http.StatusNoContent, w.Code, "books outside the share are not served")
}

func TestNoneShareIsEmpty(t *testing.T) {
	f := newFixture(t)
	cfg := shareConfig("nothing")
	cfg.Mode = share.ModeNone
	svc := f.service(t, cfg)

	doc, err := svc.Library(contextWithClient(privateClient))
	require.NoError(t, err)
	assert.Equal(t, f.catalog.ID, doc.ID)
	assert.Empty(t, doc.Books)
}

func TestImageCount(t *testing.T) {
	f := newFixture(t)
	missing := f.catalog.Add(&catalog.Book{ID: uuid.New(), FilePath: "/comics/missing.cbz"})
	svc := f.service(t, shareConfig("library"))
	h := svc.Handler()

	count := func(id string) int {
		w := serve(h, http.MethodGet, "/library/Library/books/"+id+"/count", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]int
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body["count"]
	}

	assert.Equal(t, 3, count(f.book.String()))
	assert.Equal(t, 3, count(f.book.String()))
	assert.Len(t, f.openedProviders(), 1, "count is cached on the book")

	assert.Equal(t, 0, count(uuid.New().String()))
	assert.Equal(t, 0, count(missing.String()))
	assert.Equal(t, 0, count("not-a-uuid"))
}

func TestImage(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, shareConfig("library"))
	h := svc.Handler()
	base := "/library/Library/books/" + f.book.String() + "/pages/"

	w := serve(h, http.MethodGet, base+"1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, f.page, w.Body.Bytes(), "quality 100 serves the canonical bytes")

	for _, target := range []string{
		base + "7",
		base + "-1",
		base + "x",
		"/library/Library/books/" + uuid.New().String() + "/pages/0",
		"/library/Library/books/nope/pages/0",
	} {
		w := serve(h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusNoContent, w.Code, target)
		assert.Zero(t, w.Body.Len(), target)
	}

	client, ok := svc.Stats().Client("127.0.0.1")
	require.True(t, ok)
	assert.Equal(t, int64(1), client.PageRequests)
	assert.Equal(t, int64(len(f.page)), client.BytesServed)
}

func TestImageReencoded(t *testing.T) {
	f := newFixture(t)
	cfg := shareConfig("library")
	cfg.PageQuality = 50
	svc := f.service(t, cfg)

	w := serve(svc.Handler(), http.MethodGet, "/library/Library/books/"+f.book.String()+"/pages/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.NotEqual(t, f.page, w.Body.Bytes())
}

func TestImageLargerThanMessageSize(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, shareConfig("library"), func(o *ServiceOptions) {
		o.MaxMessageSize = 16
	})

	w := serve(svc.Handler(), http.MethodGet, "/library/Library/books/"+f.book.String()+"/pages/0", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestThumbnail(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, shareConfig("library"))

	w := serve(svc.Handler(), http.MethodGet, "/library/Library/books/"+f.book.String()+"/thumbnails/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ThumbnailContentType, w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("CSTH")))

	var thumbnail imaging.ThumbnailImage
	require.NoError(t, thumbnail.UnmarshalBinary(w.Body.Bytes()))
	assert.Equal(t, 10, thumbnail.Width)
	assert.Equal(t, 20, thumbnail.Height)
	assert.Equal(t, 40, thumbnail.OriginalWidth)
	assert.Equal(t, 80, thumbnail.OriginalHeight)

	client, ok := svc.Stats().Client("127.0.0.1")
	require.True(t, ok)
	assert.Equal(t, int64(1), client.ThumbnailRequests)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	cfg := shareConfig("library")
	cfg.Editable = true
	svc := f.service(t, cfg)
	h := svc.Handler()
	target := "/library/Library/books/" + f.book.String()

	w := serve(h, http.MethodPatch, target, strings.NewReader(`{"field":"title","value":"Renamed"}`))
	require.Equal(t, http.StatusNoContent, w.Code)
	book, err := f.catalog.Book(f.book)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", book.Title)

	tests := []struct {
		name   string
		target string
		body   string
		code   int
	}{
		{"invalid value", target, `{"field":"rating","value":9}`, http.StatusBadRequest},
		{"unknown field", target, `{"field":"colour","value":"red"}`, http.StatusBadRequest},
		{"malformed body", target, `{"field":`, http.StatusBadRequest},
		{"unknown book", "/library/Library/books/" + uuid.New().String(), `{"field":"title","value":"x"}`, http.StatusNotFound},
		{"invalid id", "/library/Library/books/nope", `{"field":"title","value":"x"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, http.MethodPatch, tt.target, strings.NewReader(tt.body))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestUpdateReadOnlyShare(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, shareConfig("library"))

	w := serve(svc.Handler(), http.MethodPatch, "/library/Library/books/"+f.book.String(),
		strings.NewReader(`{"field":"title","value":"Renamed"}`))
	assert.Equal(t, http.StatusForbidden, w.Code)

	book, err := f.catalog.Book(f.book)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", book.Title)
}

func TestUpdateBodyLimit(t *testing.T) {
	f := newFixture(t)
	cfg := shareConfig("library")
	cfg.Editable = true
	svc := f.service(t, cfg, func(o *ServiceOptions) {
		o.MaxMessageSize = 32
	})

	body := fmt.Sprintf(`{"field":"summary","value":%q}`, strings.Repeat("a", 64))
	w := serve(svc.Handler(), http.MethodPatch, "/library/Library/books/"+f.book.String(), strings.NewReader(body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSelectedShareUpdateReachesLiveCatalog(t *testing.T) {
	f := newFixture(t)
	cfg := shareConfig("friends")
	cfg.Mode = share.ModeSelected
	cfg.SharedLists = []string{f.list.String()}
	cfg.Editable = true
	svc := f.service(t, cfg)
	ctx := contextWithClient(privateClient)

	require.NoError(t, svc.Update(ctx, f.book, catalog.RatingUpdate{Value: 4}))

	live, err := f.catalog.Book(f.book)
	require.NoError(t, err)
	assert.Equal(t, 4.0, live.Rating)

	doc, err := svc.Library(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, doc.Books[0].Rating)

	err = svc.Update(ctx, f.other, catalog.RatingUpdate{Value: 1})
	assert.True(t, errors.IsNotFound(err), "books outside the share cannot be edited")
}

func TestSelectedShareFollowsLiveCatalog(t *testing.T) {
	f := newFixture(t)
	top := uuid.New()
	f.catalog.AddList(catalog.NewSmartList(top, "Top", "rating >= 4"))

	home := shareConfig("home")
	home.Editable = true
	homeSvc := f.service(t, home)

	friends := shareConfig("friends")
	friends.Mode = share.ModeSelected
	friends.SharedLists = []string{f.list.String(), top.String()}
	friendsSvc := f.service(t, friends)
	ctx := contextWithClient(privateClient)

	doc, err := friendsSvc.Library(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Books, 1)
	_, err = friendsSvc.Image(ctx, f.other, 0)
	require.Error(t, err, "the other book is outside the share")

	require.NoError(t, homeSvc.Update(ctx, f.book, catalog.TextUpdate{Target: catalog.FieldTitle, Value: "Renamed"}))
	require.NoError(t, homeSvc.Update(ctx, f.other, catalog.RatingUpdate{Value: 5}))

	doc, err = friendsSvc.Library(ctx)
	require.NoError(t, err)
	titles := map[uuid.UUID]string{}
	for _, b := range doc.Books {
		titles[b.ID] = b.Title
	}
	assert.Equal(t, map[uuid.UUID]string{f.book: "Renamed", f.other: "Beta"}, titles)

	var members []uuid.UUID
	for _, l := range doc.Lists {
		if l.ID == top {
			members = l.BookIDs
		}
	}
	assert.Equal(t, []uuid.UUID{f.other}, members, "smart list membership follows the new rating")

	_, err = friendsSvc.Image(ctx, f.other, 0)
	assert.NoError(t, err, "content follows the refreshed scope")

	count, err := friendsSvc.ImageCount(ctx, f.other)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	live, err := f.catalog.Book(f.other)
	require.NoError(t, err)
	assert.Equal(t, 3, live.PageCount, "learned page counts land in the live catalog")

	// Copies stay independent of the live catalog.
	doc.Books[0].Title = "Scribbled"
	book, err := f.catalog.Book(doc.Books[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, "Scribbled", book.Title)
}

func TestCallsWithoutClientAddressAreNotCounted(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, shareConfig("library"))

	w := serve(svc.Handler(), http.MethodGet, "/library/Info", nil, from("pipe"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.Stats().Clients)

	w = serve(svc.Handler(), http.MethodGet, "/library/Info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, svc.Stats().Clients, 1)
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, shareConfig("library"))
	h := svc.Handler()

	serve(h, http.MethodGet, "/library/Library/books/"+f.book.String()+"/pages/0", nil)
	serve(h, http.MethodGet, "/library/Library/books/"+f.book.String()+"/pages/1", nil, from("10.0.0.7:1000"))

	w := serve(h, http.MethodGet, "/library/Library/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report statsReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "library", report.Share)
	require.Len(t, report.Clients, 2)
	assert.Equal(t, "10.0.0.7", report.Clients[0].Address)
	assert.Equal(t, int64(2), report.Totals.PageRequests)
	assert.Equal(t, int64(2*len(f.page)), report.Totals.BytesServed)
	assert.Equal(t, 1, report.Providers.Open)
}

func TestServiceCloseDisposesProviders(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, shareConfig("library"))

	serve(svc.Handler(), http.MethodGet, "/library/Library/books/"+f.book.String()+"/pages/0", nil)
	opened := f.openedProviders()
	require.Len(t, opened, 1)
	assert.False(t, opened[0].closed.Load())

	require.NoError(t, svc.Close())
	assert.True(t, opened[0].closed.Load())
	assert.Empty(t, svc.Stats().Clients)
	assert.NoError(t, svc.Close())

	_, err := svc.Image(contextWithClient(privateClient), f.book, 0)
	assert.Error(t, err, "a closed service opens no content")
}

func TestNewServiceRejectsInvalidShare(t *testing.T) {
	f := newFixture(t)

	_, err := NewService(ServiceOptions{Share: config.ShareConfig{Name: "a/b", Mode: share.ModeAll}, Catalog: f.catalog})
	assert.True(t, errors.IsConfig(err))

	cfg := shareConfig("library")
	cfg.SharedLists = []string{"nope"}
	_, err = NewService(ServiceOptions{Share: cfg, Catalog: f.catalog})
	assert.True(t, errors.IsConfig(err))

	_, err = NewService(ServiceOptions{Share: shareConfig("library")})
	assert.True(t, errors.IsConfig(err))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{errors.ErrPrivateNetworkOnly("8.8.8.8"), http.StatusUnauthorized},
		{errors.ErrNotEditable("library"), http.StatusForbidden},
		{errors.ErrBookNotFound("x"), http.StatusNotFound},
		{errors.NewValidationError(errors.ErrCodeInvalidUpdate, "bad"), http.StatusBadRequest},
		{errors.NewTransientError(errors.ErrCodePageDecode, "bad", nil), http.StatusServiceUnavailable},
		{errors.NewInternalError(errors.ErrCodeInternalError, "boom", nil), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, statusCode(tt.err), tt.err.Error())
	}
}

func TestAcceptsEncoding(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"zstd", true},
		{"gzip, br", false},
		{"gzip, ZSTD;q=0.5", true},
		{"zstd;q=0", false},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Accept-Encoding", tt.header)
		assert.Equal(t, tt.want, acceptsEncoding(r, "zstd"), tt.header)
	}
}

func TestEtagMatches(t *testing.T) {
	assert.False(t, etagMatches("", `"a"`))
	assert.True(t, etagMatches(`"a"`, `"a"`))
	assert.True(t, etagMatches(`"b", W/"a"`, `"a"`))
	assert.True(t, etagMatches("*", `"a"`))
	assert.False(t, etagMatches(`"b"`, `"a"`))
}
