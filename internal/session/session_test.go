package session

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ulift/internal/crypto"
	"ulift/internal/pipeline"
	"ulift/internal/roster"
)

func testStore(t *testing.T) Store {
	t.Helper()
	keys, err := crypto.DeriveCookieKeys(bytes.Repeat([]byte{1}, crypto.MasterKeySize))
	require.NoError(t, err)
	return NewCookieStore(keys, false, 0)
}

func TestInstanceID_AssignsAndReuses(t *testing.T) {
	store := testStore(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/register", nil)
	id, err := InstanceID(store, w, r)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	r2 := httptest.NewRequest(http.MethodGet, "/register", nil)
	r2.AddCookie(cookies[0])
	w2 := httptest.NewRecorder()
	again, err := InstanceID(store, w2, r2)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Empty(t, w2.Result().Cookies(), "known instance needs no new cookie")
}

func TestInstanceID_TamperedCookieStartsOver(t *testing.T) {
	store := testStore(t)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
	w := httptest.NewRecorder()

	id, err := InstanceID(store, w, r)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Len(t, w.Result().Cookies(), 1)
}

func newTestRegistry(ttl time.Duration) (*Registry, *time.Time, *[]int) {
	now := time.Now()
	var sizes []int
	reg := NewRegistry(RegistryOptions{
		IdleTTL: ttl,
		Build:   func(id string) *Instance { return NewInstance(id, pipeline.Options{}) },
		OnSize:  func(n int) { sizes = append(sizes, n) },
	})
	reg.now = func() time.Time { return now }
	return reg, &now, &sizes
}

func TestRegistry_GetCreatesOnce(t *testing.T) {
	reg, _, sizes := newTestRegistry(time.Minute)

	a := reg.Get("a")
	assert.Same(t, a, reg.Get("a"))
	assert.NotSame(t, a, reg.Get("b"))
	assert.Equal(t, []int{1, 2}, *sizes)
}

func TestRegistry_SweepDropsIdle(t *testing.T) {
	reg, now, sizes := newTestRegistry(time.Minute)

	old := reg.Get("old")
	*now = now.Add(45 * time.Second)
	reg.Get("fresh")
	*now = now.Add(30 * time.Second)

	assert.Equal(t, 1, reg.Sweep())
	assert.Equal(t, []int{1, 2, 1}, *sizes)
	assert.NotSame(t, old, reg.Get("old"), "swept instance is rebuilt")
}

func TestRegistry_CloseEmpties(t *testing.T) {
	reg, _, sizes := newTestRegistry(time.Minute)
	reg.Get("a")
	reg.Get("b")
	require.NoError(t, reg.Close())
	assert.Equal(t, []int{1, 2, 0}, *sizes)
}

func TestInstance_Navigation(t *testing.T) {
	inst := NewInstance("x", pipeline.Options{})
	assert.False(t, inst.TakeNavigation())
	inst.NavigateToLogin()
	assert.True(t, inst.TakeNavigation())
	assert.False(t, inst.TakeNavigation())
}

func TestInstance_ListenerCreatedOnce(t *testing.T) {
	inst := NewInstance("x", pipeline.Options{})
	assert.Nil(t, inst.Listener(nil))
	assert.Empty(t, inst.Roster())

	calls := 0
	open := func() *roster.Listener {
		calls++
		return roster.NewListener(roster.Options{URL: "ws://127.0.0.1:1/"})
	}
	l := inst.Listener(open)
	assert.Same(t, l, inst.Listener(open))
	assert.Equal(t, 1, calls)

	l.State().Replace([]string{"ana"})
	assert.Equal(t, []string{"ana"}, inst.Roster())
	require.NoError(t, inst.Close())
	assert.Nil(t, inst.Listener(nil))
}
