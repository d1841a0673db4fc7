package wizard

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/marketbot/market"
	"github.com/m3rciful/marketbot/market/session"
	"github.com/m3rciful/marketbot/market/store"
)

const seller int64 = 100

func setup(t *testing.T) (*Wizard, session.Manager, *store.Memory) {
	t.Helper()
	sessions := session.NewMemoryManager()
	st := store.NewMemory()
	st.PutUser(market.User{ID: seller, FirstName: "Sara", Username: "sara"})
	w := New(sessions, st)
	w.Start(seller)
	return w, sessions, st
}

func step(t *testing.T, w *Wizard, in Input) Result {
	t.Helper()
	res, err := w.Step(context.Background(), seller, in)
	require.NoError(t, err)
	return res
}

func media(ref string) Input { return Input{MediaRef: ref} }
func text(s string) Input    { return Input{Text: s} }

func listing(t *testing.T, m session.Manager) session.ListingDraft {
	t.Helper()
	s, ok := m.Get(seller)
	require.True(t, ok)
	d, ok := s.Listing()
	require.True(t, ok)
	return d
}

func TestContinueRequiresMedia(t *testing.T) {
	for n := 0; n <= 4; n++ {
		t.Run(fmt.Sprintf("%d media", n), func(t *testing.T) {
			w, sessions, _ := setup(t)
			for i := 0; i < n; i++ {
				step(t, w, media(fmt.Sprintf("f%d", i)))
			}
			res := step(t, w, text("next"))
			if n == 0 {
				assert.True(t, res.Ignored)
				assert.Equal(t, session.StateAwaitingImages, sessions.GetState(seller))
				return
			}
			assert.Equal(t, session.StateAwaitingTitle, sessions.GetState(seller))
			assert.Len(t, listing(t, sessions).Images, n)
		})
	}
}

func TestFifthMediaAutoAdvances(t *testing.T) {
	w, sessions, _ := setup(t)
	for i := 0; i < 4; i++ {
		res := step(t, w, media(fmt.Sprintf("f%d", i)))
		assert.Equal(t, session.StateAwaitingImages, res.State)
	}
	res := step(t, w, media("f4"))
	assert.Equal(t, session.StateAwaitingTitle, res.State)
	assert.Equal(t, session.StateAwaitingTitle, sessions.GetState(seller))
	assert.Len(t, listing(t, sessions).Images, 5)
}

func TestImagesStepIgnoresOtherInput(t *testing.T) {
	w, sessions, _ := setup(t)
	res := step(t, w, text("hello"))
	assert.True(t, res.Ignored)
	res = step(t, w, Input{Choice: &market.Choice{Key: KeyCategory, Payload: "1"}})
	assert.True(t, res.Ignored)
	assert.Equal(t, session.StateAwaitingImages, sessions.GetState(seller))
}

func TestContinueTokenCaseInsensitive(t *testing.T) {
	w, sessions, _ := setup(t)
	step(t, w, media("f"))
	step(t, w, text("  NEXT "))
	assert.Equal(t, session.StateAwaitingTitle, sessions.GetState(seller))
}

func advanceToPrice(t *testing.T, w *Wizard) {
	t.Helper()
	step(t, w, media("f"))
	step(t, w, text("next"))
	step(t, w, text("Desk lamp"))
}

func TestBlankTitleRepromptsTitle(t *testing.T) {
	w, sessions, _ := setup(t)
	step(t, w, media("f"))
	step(t, w, text("next"))

	res := step(t, w, text("   "))
	assert.False(t, res.Ignored)
	require.Len(t, res.Replies, 1)
	assert.Equal(t, titlePrompt(), res.Replies[0])
	assert.Equal(t, session.StateAwaitingTitle, sessions.GetState(seller))
	assert.Empty(t, listing(t, sessions).Title)
}

func TestLongTitleCompletesListing(t *testing.T) {
	w, sessions, st := setup(t)
	title := strings.Repeat("x", 300)
	step(t, w, media("f"))
	step(t, w, text("next"))
	step(t, w, text(title))
	step(t, w, text("250"))
	step(t, w, text("skip"))

	res := step(t, w, Input{Choice: &market.Choice{Key: KeyCategory, Payload: "0"}})
	require.NotNil(t, res.Submitted)
	assert.False(t, sessions.InProgress(seller))

	p, err := st.GetProduct(res.Submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, title, p.Title)
	assert.Equal(t, int64(1), p.ID)
}

func TestPriceValidation(t *testing.T) {
	for _, bad := range []string{"abc", "-5", "0", "", "12.5"} {
		t.Run(bad, func(t *testing.T) {
			w, sessions, _ := setup(t)
			advanceToPrice(t, w)

			res, err := w.Step(context.Background(), seller, text(bad))
			require.Error(t, err)
			assert.True(t, market.IsValidation(err))
			require.Len(t, res.Replies, 1)
			assert.Equal(t, session.StateAwaitingPrice, sessions.GetState(seller))
			assert.Zero(t, listing(t, sessions).Price)
		})
	}

	w, sessions, _ := setup(t)
	advanceToPrice(t, w)
	res := step(t, w, text("250"))
	assert.Equal(t, session.StateAwaitingDescription, res.State)
	assert.Equal(t, int64(250), listing(t, sessions).Price)
}

func TestSkipDescription(t *testing.T) {
	w, sessions, _ := setup(t)
	advanceToPrice(t, w)
	step(t, w, text("250"))
	res := step(t, w, text("/skip"))
	assert.Equal(t, session.StateAwaitingCategory, res.State)
	assert.Empty(t, listing(t, sessions).Description)
	require.Len(t, res.Replies, 1)
	assert.Len(t, res.Replies[0].Options.Inline, len(market.Categories)+1)
}

func completeTo(t *testing.T, w *Wizard) {
	t.Helper()
	advanceToPrice(t, w)
	step(t, w, text("250"))
	step(t, w, text("Barely used"))
}

func TestCategoryStepIgnoresText(t *testing.T) {
	w, sessions, _ := setup(t)
	completeTo(t, w)
	res := step(t, w, text("Electronics"))
	assert.True(t, res.Ignored)
	assert.Equal(t, session.StateAwaitingCategory, sessions.GetState(seller))
}

func TestCompleteCreatesPendingProduct(t *testing.T) {
	w, sessions, st := setup(t)
	completeTo(t, w)

	res := step(t, w, Input{Choice: &market.Choice{Key: KeyCategory, Payload: "1"}})
	require.NotNil(t, res.Submitted)
	assert.Equal(t, "Submitted for approval!", res.Ack)
	assert.False(t, sessions.InProgress(seller))

	p, err := st.GetProduct(res.Submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, market.StatusPending, p.Status)
	assert.Equal(t, "Desk lamp", p.Title)
	assert.Equal(t, int64(250), p.Price)
	assert.Equal(t, "Barely used", p.Description)
	assert.Equal(t, "Electronics", p.Category)
	assert.Equal(t, "sara", p.SellerUsername)
	assert.Equal(t, []string{"f"}, p.Images)
	assert.Nil(t, p.ApprovedBy)
}

func TestProductIDsStrictlyIncrease(t *testing.T) {
	w, _, _ := setup(t)
	var last int64
	for i := 0; i < 3; i++ {
		w.Start(seller)
		completeTo(t, w)
		res := step(t, w, Input{Choice: &market.Choice{Key: KeyCategory, Payload: "0"}})
		require.NotNil(t, res.Submitted)
		assert.Greater(t, res.Submitted.ID, last)
		last = res.Submitted.ID
	}
}

func TestCancelCreatesNothing(t *testing.T) {
	w, sessions, st := setup(t)
	completeTo(t, w)
	res := step(t, w, Input{Choice: &market.Choice{Key: KeyCancel}})
	assert.True(t, res.Cancelled)
	assert.Nil(t, res.Submitted)
	assert.False(t, sessions.InProgress(seller))
	assert.Empty(t, st.ListProducts(nil))
}

func TestUnknownCategoryIgnored(t *testing.T) {
	w, sessions, _ := setup(t)
	completeTo(t, w)
	res := step(t, w, Input{Choice: &market.Choice{Key: KeyCategory, Payload: "99"}})
	assert.True(t, res.Ignored)
	assert.Equal(t, session.StateAwaitingCategory, sessions.GetState(seller))
}

func TestStepWithoutSession(t *testing.T) {
	w := New(session.NewMemoryManager(), store.NewMemory())
	_, err := w.Step(context.Background(), 1, text("hi"))
	assert.ErrorIs(t, err, market.ErrNoActiveSession)
}

func TestStepOutsideWizard(t *testing.T) {
	sessions := session.NewMemoryManager()
	w := New(sessions, store.NewMemory())
	sessions.Start(1, session.StateContactAdmin, session.ContactDraft{})
	_, err := w.Step(context.Background(), 1, text("hi"))
	assert.ErrorIs(t, err, market.ErrNoActiveSession)
	assert.False(t, Owns(session.StateContactAdmin))
	assert.True(t, Owns(session.StateAwaitingPrice))
}
