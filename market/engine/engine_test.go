package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/marketbot/market"
	"github.com/m3rciful/marketbot/market/markettest"
	"github.com/m3rciful/marketbot/market/moderation"
	"github.com/m3rciful/marketbot/market/notify"
	"github.com/m3rciful/marketbot/market/session"
	"github.com/m3rciful/marketbot/market/store"
	"github.com/m3rciful/marketbot/market/wizard"
)

const (
	admin   int64 = 1
	seller  int64 = 10
	buyer   int64 = 20
	channel int64 = -100
)

type fixture struct {
	engine   *Engine
	store    *store.Memory
	sessions session.Manager
	tr       *markettest.Transport
}

func newFixture(t *testing.T, cfg Config, limiter notify.Limiter) *fixture {
	t.Helper()
	st := store.NewMemory()
	sessions := session.NewMemoryManager()
	tr := markettest.NewTransport()
	fan := notify.New(tr, limiter)
	e := New(Deps{
		Store:      st,
		Sessions:   sessions,
		Wizard:     wizard.New(sessions, st),
		Moderation: moderation.New(st, fan, tr, moderation.Config{Admins: []int64{admin}, ChannelID: channel}),
		Fanout:     fan,
		Transport:  tr,
	}, cfg)
	t.Cleanup(e.Close)
	return &fixture{engine: e, store: st, sessions: sessions, tr: tr}
}

func (f *fixture) text(t *testing.T, from int64, text string) {
	t.Helper()
	require.NoError(t, f.engine.Handle(context.Background(), market.TextMessage{UserID: from, ChatID: from, Text: text, FirstName: "U"}))
}

func (f *fixture) media(t *testing.T, from int64, ref string) {
	t.Helper()
	require.NoError(t, f.engine.Handle(context.Background(), market.MediaMessage{UserID: from, ChatID: from, MediaRef: ref}))
}

func (f *fixture) choose(t *testing.T, from int64, id, key, payload string) {
	t.Helper()
	require.NoError(t, f.engine.Handle(context.Background(), market.Choice{
		ID: id, UserID: from, ChatID: from, Key: key, Payload: payload, MessageID: 7,
	}))
}

func (f *fixture) approved(title string) market.Product {
	p := market.Product{
		ID:        f.store.NextProductID(),
		SellerID:  seller,
		Title:     title,
		Price:     100,
		Category:  "Electronics",
		Images:    []string{"img-" + title},
		Status:    market.StatusApproved,
		CreatedAt: time.Now(),
	}
	f.store.PutProduct(p)
	return p
}

func indexOf(calls []markettest.Sent, match func(markettest.Sent) bool) int {
	for i, c := range calls {
		if match(c) {
			return i
		}
	}
	return -1
}

func (f *fixture) report(t *testing.T, chatID int64) markettest.Sent {
	t.Helper()
	for _, c := range f.tr.To(chatID) {
		if strings.HasPrefix(c.Text, "Broadcast finished") {
			return c
		}
	}
	t.Fatalf("no broadcast report for %d", chatID)
	return markettest.Sent{}
}

func TestListingFromSellToApproval(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.text(t, seller, "/start")
	f.text(t, seller, LabelSell)
	f.media(t, seller, "photo-a")
	f.text(t, seller, "next")
	f.text(t, seller, "Headphones")
	f.text(t, seller, "abc")
	assert.Equal(t, session.StateAwaitingPrice, f.sessions.GetState(seller))
	f.text(t, seller, "1200")
	f.text(t, seller, "/skip")
	f.choose(t, seller, "c1", wizard.KeyCategory, "1")

	assert.False(t, f.sessions.InProgress(seller))
	products := f.store.ListProducts(store.ByStatus(market.StatusPending))
	require.Len(t, products, 1)
	p := products[0]
	assert.Equal(t, "Electronics", p.Category)
	assert.Equal(t, int64(1200), p.Price)
	assert.Empty(t, p.Description)

	calls := f.tr.Calls()
	ack := indexOf(calls, func(c markettest.Sent) bool { return c.Kind == "ack" && c.ChoiceID == "c1" })
	card := indexOf(calls, func(c markettest.Sent) bool { return c.ChatID == admin && c.Kind == "media" })
	require.NotEqual(t, -1, ack)
	require.NotEqual(t, -1, card)
	assert.Less(t, ack, card)
	assert.Equal(t, "Submitted for approval!", calls[ack].Text)

	f.choose(t, admin, "c2", moderation.KeyApprove, "1")
	got, err := f.store.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, market.StatusApproved, got.Status)
	post, ok := f.tr.Last(channel)
	require.True(t, ok)
	assert.Equal(t, "photo-a", post.MediaRef)
}

func TestSecondDecisionIsRejected(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	p := f.approved("Lamp")
	_, err := f.store.UpdateProduct(p.ID, func(p *market.Product) error {
		p.Status = market.StatusPending
		return nil
	})
	require.NoError(t, err)

	f.choose(t, admin, "a1", moderation.KeyApprove, "1")
	f.choose(t, admin, "a2", moderation.KeyReject, "1")

	acks := f.tr.Acks()
	require.Len(t, acks, 2)
	assert.Equal(t, "Approved", acks[0].Text)
	assert.Equal(t, "Already approved", acks[1].Text)
	last, _ := f.tr.Last(admin)
	assert.Contains(t, last.Text, "already been reviewed")

	got, _ := f.store.GetProduct(p.ID)
	assert.Equal(t, market.StatusApproved, got.Status)
}

func TestSellDiscardsContactSession(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.text(t, buyer, LabelContact)
	assert.Equal(t, session.StateContactAdmin, f.sessions.GetState(buyer))

	f.text(t, buyer, LabelSell)
	assert.Equal(t, session.StateAwaitingImages, f.sessions.GetState(buyer))

	f.text(t, buyer, "hello admins")
	assert.Empty(t, f.tr.To(admin))
	assert.Equal(t, session.StateAwaitingImages, f.sessions.GetState(buyer))
}

func TestContactAdminFansOutWithReplyButton(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.text(t, buyer, "/contact")
	f.text(t, buyer, "Is delivery available?")

	got, ok := f.tr.Last(admin)
	require.True(t, ok)
	assert.Contains(t, got.Text, "Is delivery available?")
	require.Len(t, got.Options.Inline, 1)
	assert.Equal(t, market.Button{Text: "Reply", Key: KeyReply, Payload: "20"}, got.Options.Inline[0][0])

	f.choose(t, admin, "r1", KeyReply, "20")
	assert.Equal(t, session.StateMessageText, f.sessions.GetState(admin))
	f.text(t, admin, "Yes it is")
	reply, ok := f.tr.Last(buyer)
	require.True(t, ok)
	assert.Contains(t, reply.Text, "Yes it is")
}

func TestMaintenanceBlocksEntryPoints(t *testing.T) {
	f := newFixture(t, Config{Maintenance: true}, nil)
	p := f.approved("Chair")

	for _, cmd := range []string{"/start", "/sell", LabelBrowse, "/myproducts", "/contact"} {
		f.tr.Reset()
		f.text(t, buyer, cmd)
		got, ok := f.tr.Last(buyer)
		require.True(t, ok, cmd)
		assert.Equal(t, MaintenanceNotice, got.Text, cmd)
		assert.False(t, f.sessions.InProgress(buyer), cmd)
	}

	f.choose(t, buyer, "b1", KeyBuy, "1")
	assert.False(t, f.sessions.InProgress(buyer))
	assert.Len(t, f.store.ListProducts(nil), 1)
	assert.Equal(t, p.ID, f.store.ListProducts(nil)[0].ID)

	f.text(t, admin, LabelMaintenance)
	assert.False(t, f.engine.Maintenance())
	f.text(t, buyer, "/sell")
	assert.Equal(t, session.StateAwaitingImages, f.sessions.GetState(buyer))
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.text(t, buyer, "/maintenance")
	assert.False(t, f.engine.Maintenance())
	got, _ := f.tr.Last(buyer)
	assert.Contains(t, got.Text, "admins only")

	f.choose(t, buyer, "x", KeyReply, "5")
	assert.False(t, f.sessions.InProgress(buyer))
}

func TestBroadcastReportsSentAndFailed(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	for _, id := range []int64{admin, 31, 32, 33, 34, 35} {
		f.store.PutUser(market.User{ID: id})
	}
	f.tr.Fail(33, 35)

	f.text(t, admin, LabelBroadcast)
	f.text(t, admin, "Exam week sale!")
	f.engine.Wait()

	for _, id := range []int64{31, 32, 34} {
		got, ok := f.tr.Last(id)
		require.True(t, ok)
		assert.Contains(t, got.Text, "Exam week sale!")
	}
	report := f.report(t, admin)
	assert.Contains(t, report.Text, "Sent: 3")
	assert.Contains(t, report.Text, "Failed: 2")
}

type gate struct {
	once    sync.Once
	started chan struct{}
}

func (g *gate) Wait(ctx context.Context) error {
	g.once.Do(func() { close(g.started) })
	<-ctx.Done()
	return ctx.Err()
}

func TestCancelStopsBroadcast(t *testing.T) {
	g := &gate{started: make(chan struct{})}
	f := newFixture(t, Config{}, g)
	for _, id := range []int64{admin, 41, 42, 43} {
		f.store.PutUser(market.User{ID: id})
	}

	f.text(t, admin, "/broadcast")
	f.text(t, admin, "hello")
	<-g.started
	f.text(t, admin, "/cancel")
	f.engine.Wait()

	report := f.report(t, admin)
	assert.Contains(t, report.Text, "Sent: 1")
	assert.Contains(t, report.Text, "Cancelled before: 2")
	assert.Empty(t, f.tr.To(42))
	assert.Empty(t, f.tr.To(43))
}

func TestBrowseFallsBackToText(t *testing.T) {
	f := newFixture(t, Config{BrowseLimit: 2}, nil)
	f.approved("One")
	f.approved("Two")
	f.approved("Three")
	f.store.PutProduct(market.Product{ID: f.store.NextProductID(), SellerID: seller, Title: "Hidden", Status: market.StatusPending})
	f.tr.FailMedia()

	f.text(t, buyer, "/browse")

	var texts []markettest.Sent
	for _, c := range f.tr.To(buyer) {
		if c.Kind == "text" {
			texts = append(texts, c)
		}
	}
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0].Text, "Three")
	assert.Contains(t, texts[1].Text, "Two")
	assert.Equal(t, KeyBuy, texts[0].Options.Inline[0][0].Key)
	assert.Equal(t, "3", texts[0].Options.Inline[0][0].Payload)
}

func TestBuyContactsSeller(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	p := f.approved("Bike")

	f.choose(t, buyer, "b1", KeyBuy, "1")
	s, ok := f.sessions.Get(buyer)
	require.True(t, ok)
	d, ok := s.Contact()
	require.True(t, ok)
	assert.Equal(t, session.ContactDraft{ProductID: p.ID, RecipientID: seller}, d)

	f.text(t, buyer, "Still available?")
	got, ok := f.tr.Last(seller)
	require.True(t, ok)
	assert.Contains(t, got.Text, "Still available?")
	assert.False(t, f.sessions.InProgress(buyer))
}

func TestBuyUnknownProduct(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.choose(t, buyer, "b1", KeyBuy, "99")
	acks := f.tr.Acks()
	require.Len(t, acks, 1)
	assert.Equal(t, "Product not available", acks[0].Text)
	assert.False(t, f.sessions.InProgress(buyer))
}

func TestMessageUserValidatesTarget(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.store.PutUser(market.User{ID: 77})

	f.text(t, admin, LabelMessageUser)
	f.text(t, admin, "abc")
	assert.Equal(t, session.StateMessageTarget, f.sessions.GetState(admin))
	f.text(t, admin, "78")
	assert.Equal(t, session.StateMessageTarget, f.sessions.GetState(admin))
	f.text(t, admin, "77")
	assert.Equal(t, session.StateMessageText, f.sessions.GetState(admin))
	f.text(t, admin, "Your order is ready")

	got, ok := f.tr.Last(77)
	require.True(t, ok)
	assert.Contains(t, got.Text, "Your order is ready")
	assert.False(t, f.sessions.InProgress(admin))
}

func TestFirstEventRegistersUser(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	require.NoError(t, f.engine.Handle(context.Background(), market.TextMessage{
		UserID: 5, ChatID: 5, Text: "hi", FirstName: "Abel", Username: "abel",
	}))

	u, err := f.store.GetUser(5)
	require.NoError(t, err)
	assert.Equal(t, "Abel", u.FirstName)
	got, _ := f.tr.Last(5)
	assert.Equal(t, [][]string{{LabelBrowse, LabelSell}, {LabelMyProducts, LabelContact}, {LabelHelp}}, got.Options.Menu)
}

func TestStats(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.approved("A")
	f.text(t, buyer, "/start")

	f.text(t, admin, "/stats")
	got, _ := f.tr.Last(admin)
	assert.Contains(t, got.Text, "Users: 2")
	assert.Contains(t, got.Text, "Approved: 1")
}

func TestCommandLookup(t *testing.T) {
	table := defaultCommands()
	for in, want := range map[string]string{
		"/sell":             "sell",
		"/SELL":             "sell",
		"/browse@marketbot": "browse",
		"/message 42":       "message",
		LabelPending:        "pending",
	} {
		c, ok := table.lookup(in)
		require.True(t, ok, in)
		assert.Equal(t, want, c.name, in)
	}
	_, ok := table.lookup("sell")
	assert.False(t, ok)
}

func TestKeyLockSerializesAndReleases(t *testing.T) {
	k := newKeyLock()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(9)
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.size())
}
