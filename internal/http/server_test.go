package http

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/olympus-market/olympus-client/internal/market"
	"github.com/olympus-market/olympus-client/internal/reconcile"
	"github.com/olympus-market/olympus-client/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

type fakeSessions struct {
	mu         sync.Mutex
	cur        session.Session
	connectErr error
	feed       event.Feed
}

func (f *fakeSessions) Current() session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeSessions) Connect(context.Context) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.cur, f.connectErr
	}
	a := alice
	f.cur = session.Session{Account: &a, ChainID: big.NewInt(31337), Status: session.Connected, Generation: 1}
	return f.cur, nil
}

func (f *fakeSessions) Disconnect(context.Context) session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cur = session.Session{Generation: f.cur.Generation + 1}
	return f.cur
}

func (f *fakeSessions) Subscribe(ch chan<- session.Change) event.Subscription {
	return f.feed.Subscribe(ch)
}

type fakeViews struct {
	mu     sync.Mutex
	filter reconcile.Filter
	feed   event.Feed
}

func (f *fakeViews) Views() reconcile.Views {
	return reconcile.Views{Seq: 7, Owned: []reconcile.TokenView{}}
}

func (f *fakeViews) SetFilter(filter reconcile.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	return nil
}

func (f *fakeViews) Subscribe(ch chan<- reconcile.Views) event.Subscription {
	return f.feed.Subscribe(ch)
}

type fakeLoader struct{}

func (fakeLoader) LoadOwned(context.Context, session.Session) ([]reconcile.TokenView, error) {
	return []reconcile.TokenView{{TokenID: "1", Name: "Zeus"}}, nil
}

func (fakeLoader) LoadMarketplace(_ context.Context, f reconcile.Filter) ([]reconcile.ListingView, error) {
	all := []reconcile.ListingView{
		{TokenView: reconcile.TokenView{TokenID: "2", Name: "Hera"}, Seller: alice.Hex(), PriceWei: "2500000000000000000", Price: "2.5"},
	}
	out := []reconcile.ListingView{}
	for _, l := range all {
		price, _ := new(big.Int).SetString(l.PriceWei, 10)
		if f.Match(l.Name, price) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (fakeLoader) LoadAuctions(context.Context, time.Time) ([]reconcile.AuctionView, error) {
	return []reconcile.AuctionView{}, nil
}

func (fakeLoader) LoadCollection(_ context.Context, f reconcile.CollectionFilter) ([]reconcile.TokenView, error) {
	all := []reconcile.TokenView{
		{TokenID: "1", Name: "Zeus", Category: "Gods", CategoryID: 0},
		{TokenID: "2", Name: "Kronos", Category: "Titans", CategoryID: 1},
	}
	out := []reconcile.TokenView{}
	for _, tok := range all {
		if f.Match(tok.Name, tok.CategoryID) {
			out = append(out, tok)
		}
	}
	return out, nil
}

type fakeIntents struct {
	mu     sync.Mutex
	last   string
	args   []any
	err    error
	result market.Result
	minted market.MintRequest
}

func (f *fakeIntents) record(name string, args ...any) (market.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last, f.args = name, args
	return f.result, f.err
}

func (f *fakeIntents) Mint(_ context.Context, req market.MintRequest) (market.MintResult, error) {
	f.mu.Lock()
	f.minted = req
	f.mu.Unlock()
	res, err := f.record("mint")
	return market.MintResult{Result: res, TokenURI: "ipfs://QmMeta"}, err
}

func (f *fakeIntents) List(_ context.Context, id, price *big.Int) (market.Result, error) {
	return f.record("list", id, price)
}

func (f *fakeIntents) CancelListing(_ context.Context, id *big.Int) (market.Result, error) {
	return f.record("cancel", id)
}

func (f *fakeIntents) Buy(_ context.Context, id *big.Int) (market.Result, error) {
	return f.record("buy", id)
}

func (f *fakeIntents) Transfer(_ context.Context, id *big.Int, to common.Address) (market.Result, error) {
	return f.record("transfer", id, to)
}

func (f *fakeIntents) CreateAuction(_ context.Context, id, start *big.Int, d time.Duration) (market.Result, error) {
	return f.record("auction", id, start, d)
}

func (f *fakeIntents) PlaceBid(_ context.Context, id, amount *big.Int) (market.Result, error) {
	return f.record("bid", id, amount)
}

func (f *fakeIntents) SettleAuction(_ context.Context, id *big.Int) (market.Result, error) {
	return f.record("settle", id)
}

type fixture struct {
	server   *Server
	sessions *fakeSessions
	views    *fakeViews
	intents  *fakeIntents
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := fixture{sessions: &fakeSessions{}, views: &fakeViews{}, intents: &fakeIntents{result: market.Result{IntentID: "i-1", TxHash: "0xabc"}}}
	s, err := NewServer(Config{
		AllowedOrigins: []string{"http://localhost:3000"},
		ChainID:        big.NewInt(31337),
		NetworkName:    "Hardhat",
	}, Deps{Sessions: f.sessions, Views: f.views, Loader: fakeLoader{}, Intents: f.intents})
	require.NoError(t, err)
	f.server = s
	return f
}

func (f fixture) do(t *testing.T, method, target, contentType string, body []byte) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, "http://127.0.0.1:6138"+target, bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:50000"
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)

	var res apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return w, res
}

func TestHealthAndGuards(t *testing.T) {
	f := newFixture(t)

	w, res := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, res.OK)

	remote := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:6138/healthz", nil)
	remote.RemoteAddr = "203.0.113.9:40000"
	rw := httptest.NewRecorder()
	f.server.ServeHTTP(rw, remote)
	assert.Equal(t, http.StatusForbidden, rw.Code)

	rebind := httptest.NewRequest(http.MethodGet, "http://attacker.example/healthz", nil)
	rebind.RemoteAddr = "127.0.0.1:40000"
	rw = httptest.NewRecorder()
	f.server.ServeHTTP(rw, rebind)
	assert.Equal(t, http.StatusForbidden, rw.Code)
}

func TestNeedsAllowedOrigin(t *testing.T) {
	_, err := NewServer(Config{}, Deps{Sessions: &fakeSessions{}, Views: &fakeViews{}, Loader: fakeLoader{}, Intents: &fakeIntents{}})
	assert.Error(t, err)
}

func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t)

	w, res := f.do(t, http.MethodPost, "/session/connect", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, res.OK)
	assert.Equal(t, session.Connected, f.sessions.Current().Status)

	w, _ = f.do(t, http.MethodPost, "/session/disconnect", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.Disconnected, f.sessions.Current().Status)

	f.sessions.connectErr = errs.UserRejected(errors.New("user rejected the request"))
	w, res = f.do(t, http.MethodPost, "/session/connect", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, res.OK)
	assert.Equal(t, "user_rejected", res.Code)

	f.sessions.connectErr = errs.NoProvider(errors.New("dial"))
	w, res = f.do(t, http.MethodPost, "/session/connect", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "no_provider", res.Code)
}

func TestMarketplaceFilterQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.sessions.Connect(context.Background())
	require.NoError(t, err)

	w, res := f.do(t, http.MethodGet, "/marketplace?q=hera&min=2.5&max=3", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := res.Data.(map[string]any)
	listings := data["listings"].([]any)
	require.Len(t, listings, 1)
	assert.Equal(t, true, listings[0].(map[string]any)["listedByMe"])
	assert.Equal(t, "hera", f.views.filter.Query)
	assert.Equal(t, "2500000000000000000", f.views.filter.MinPrice.String())

	w, res = f.do(t, http.MethodGet, "/marketplace?min=2.6", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, res.Data.(map[string]any)["listings"])

	w, res = f.do(t, http.MethodGet, "/marketplace?min=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", res.Code)
}

func TestCollectionsQuery(t *testing.T) {
	f := newFixture(t)

	w, res := f.do(t, http.MethodGet, "/collections", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := res.Data.(map[string]any)
	assert.Len(t, data["tokens"], 2)
	assert.Equal(t, "All", data["filter"].(map[string]any)["category"])

	w, res = f.do(t, http.MethodGet, "/collections?category=titans", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tokens := res.Data.(map[string]any)["tokens"].([]any)
	require.Len(t, tokens, 1)
	assert.Equal(t, "2", tokens[0].(map[string]any)["tokenId"])

	w, res = f.do(t, http.MethodGet, "/collections?q=zeus&category=Titans", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, res.Data.(map[string]any)["tokens"])

	w, res = f.do(t, http.MethodGet, "/collections?category=Dragons", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", res.Code)
}

func TestReadEndpoints(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/nfts/mine", "/auctions", "/views", "/session"} {
		w, res := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.True(t, res.OK, path)
	}
}

func TestIntentEndpoints(t *testing.T) {
	f := newFixture(t)
	const jsonType = "application/json"

	w, res := f.do(t, http.MethodPost, "/nfts/4/list", jsonType, []byte(`{"price":"2.5"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, res.OK)
	assert.Equal(t, "list", f.intents.last)
	assert.Equal(t, []any{big.NewInt(4), big.NewInt(2_500_000_000_000_000_000)}, f.intents.args)

	w, _ = f.do(t, http.MethodPost, "/nfts/4/bid", jsonType, []byte(`{"amount":"0.000000000000000001"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{big.NewInt(4), big.NewInt(1)}, f.intents.args)

	w, _ = f.do(t, http.MethodPost, "/nfts/4/auction", jsonType, []byte(`{"startPrice":"1","durationSeconds":3600}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Hour, f.intents.args[2])

	// 2^63/1e9 + 1 seconds wraps a Duration; it must be rejected, not sent.
	f.intents.last = ""
	w, res = f.do(t, http.MethodPost, "/nfts/4/auction", jsonType, []byte(`{"startPrice":"1","durationSeconds":9223372037}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", res.Code)
	assert.Empty(t, f.intents.last)

	w, _ = f.do(t, http.MethodPost, "/nfts/4/transfer", jsonType, []byte(`{"to":"`+alice.Hex()+`"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, alice, f.intents.args[1])

	for _, path := range []string{"/nfts/4/cancel", "/nfts/4/buy", "/nfts/4/settle"} {
		w, _ = f.do(t, http.MethodPost, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w, res = f.do(t, http.MethodPost, "/nfts/abc/buy", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", res.Code)

	w, _ = f.do(t, http.MethodPost, "/nfts/4/list", jsonType, []byte(`{"price":"1,5"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodPost, "/nfts/4/transfer", jsonType, []byte(`{"to":"not-an-address"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRevertedIntentKeepsTxHash(t *testing.T) {
	f := newFixture(t)
	f.intents.err = errs.Reverted("0xabc")

	w, res := f.do(t, http.MethodPost, "/nfts/4/buy", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "tx_reverted", res.Code)
	assert.Equal(t, "0xabc", res.Data.(map[string]any)["txHash"])
}

func TestMintMultipart(t *testing.T) {
	f := newFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Zeus"))
	require.NoError(t, mw.WriteField("description", "King of the gods"))
	require.NoError(t, mw.WriteField("category", "Gods"))
	part, err := mw.CreateFormFile("image", "zeus.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w, res := f.do(t, http.MethodPost, "/nfts/mint", mw.FormDataContentType(), body.Bytes())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, res.OK)
	assert.Equal(t, "Zeus", f.intents.minted.Name)
	assert.Equal(t, "zeus.png", f.intents.minted.ImageName)
	assert.Equal(t, []byte("png bytes"), f.intents.minted.Image)

	w, res = f.do(t, http.MethodPost, "/nfts/mint", "application/json", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", res.Code)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.server.Hub().Run(ctx)

	ts := httptest.NewServer(f.server)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	read := func() eventMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var msg eventMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, EventTypeConnected, read().Type)
	assert.Equal(t, EventTypeSession, read().Type)
	assert.Equal(t, EventTypeViews, read().Type)

	f.sessions.feed.Send(session.Change{Session: session.Session{Generation: 2}, Reason: session.ReasonDisconnected})
	msg := read()
	assert.Equal(t, EventTypeSession, msg.Type)
	assert.Equal(t, "disconnected", msg.Data.(map[string]any)["reason"])

	f.views.feed.Send(reconcile.Views{Seq: 9})
	msg = read()
	assert.Equal(t, EventTypeViews, msg.Type)
	assert.EqualValues(t, 9, msg.Data.(map[string]any)["seq"])

	_, _, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.example"}})
	assert.Error(t, err)
}

func TestServesUIOutsideAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ui := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>ui</html>"))
	})
	s, err := NewServer(Config{
		AllowedOrigins: []string{"http://localhost:3000"},
		ChainID:        big.NewInt(31337),
		UI:             ui,
	}, Deps{Sessions: &fakeSessions{}, Views: &fakeViews{}, Loader: fakeLoader{}, Intents: &fakeIntents{}})
	require.NoError(t, err)

	serve := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "http://127.0.0.1:6138"+target, nil)
		req.RemoteAddr = "127.0.0.1:50000"
		w := httptest.NewRecorder()
		s.ServeHTTP(w, req)
		return w
	}

	w := serve(http.MethodGet, "/gallery/3")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html>ui</html>", w.Body.String())

	w = serve(http.MethodGet, "/nfts/7/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")

	w = serve(http.MethodPost, "/gallery/3")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
