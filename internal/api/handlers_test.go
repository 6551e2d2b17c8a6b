package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ulift/internal/client"
	"ulift/internal/config"
	"ulift/internal/crypto"
	"ulift/internal/roster"
	"ulift/internal/session"
)

// usersAPI fakes POST /v1/users and records the posted forms.
type usersAPI struct {
	*httptest.Server
	mu     sync.Mutex
	status int
	answer string
	posted []*multipart.Form
}

func newUsersAPI(t *testing.T, status int, answer string) *usersAPI {
	t.Helper()
	api := &usersAPI{status: status, answer: answer}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != client.CreateUserPath {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			api.mu.Lock()
			api.posted = append(api.posted, r.MultipartForm)
			api.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(api.status)
		io.WriteString(w, api.answer)
	}))
	t.Cleanup(api.Close)
	return api
}

func (a *usersAPI) Posted() []*multipart.Form {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.posted
}

type harness struct {
	srv    *Server
	web    *httptest.Server
	client *http.Client
}

func newHarness(t *testing.T, usersURL string, mutate func(*config.Config, *Deps)) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = usersURL
	cfg.API.Timeout = "5s"
	cfg.RateLimit.PerSecond = 0
	cfg.Upload.MaxBytes = 1024

	keys, err := crypto.DeriveCookieKeys(crypto.GenerateMasterKey())
	require.NoError(t, err)
	deps := Deps{
		Config: cfg,
		Users:  client.NewUsersClient(client.UsersClientConfig{BaseURL: usersURL}),
		Store:  session.NewCookieStore(keys, false, 0),
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}

	srv := NewServer(deps)
	web := httptest.NewServer(NewRouter(srv))
	t.Cleanup(func() {
		web.Close()
		srv.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{
		srv: srv,
		web: web,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (h *harness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.Get(h.web.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func (h *harness) postMultipart(t *testing.T, path string, fields map[string]string, files map[string][]byte) (*http.Response, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for k, data := range files {
		part, err := w.CreateFormFile(k, k+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	resp, err := h.client.Post(h.web.URL+path, w.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func (h *harness) postForm(t *testing.T, path string, values url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.PostForm(h.web.URL+path, values)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func validFields() map[string]string {
	return map[string]string{
		"name":            "Ana Souza",
		"phone":           "31987654321",
		"campus":          "contagem",
		"email":           "ana@example.com",
		"cpf":             "12345678901",
		"password":        "abc123",
		"passwordConfirm": "abc123",
	}
}

func raFile() map[string][]byte { return map[string][]byte{"ra": []byte("png-bytes")} }

func TestRootRedirectsToRegister(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", nil)
	resp, _ := h.get(t, "/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/register", resp.Header.Get("Location"))
}

func TestRegisterPage(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", nil)
	resp, body := h.get(t, "/register")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="passwordConfirm"`)
	assert.Contains(t, body, `value="linha-verde"`)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))
	assert.NotEmpty(t, resp.Cookies(), "first visit assigns a form instance")
}

func TestRegisterSuccessRedirectsToLogin(t *testing.T) {
	api := newUsersAPI(t, http.StatusCreated, `{"id": 42}`)
	h := newHarness(t, api.URL, nil)

	resp, _ := h.postMultipart(t, "/register", validFields(), raFile())
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	posted := api.Posted()
	require.Len(t, posted, 1)
	assert.Equal(t, []string{"Ana Souza"}, posted[0].Value["name"])
	assert.Len(t, posted[0].File["ra"], 1)
	assert.Empty(t, posted[0].File["cnh"])

	_, body := h.get(t, "/register")
	assert.NotContains(t, body, "Ana Souza", "success resets the form")
}

func TestRegisterAPIErrorShowsBanner(t *testing.T) {
	api := newUsersAPI(t, http.StatusOK, `{"error": "email taken"}`)
	h := newHarness(t, api.URL, nil)

	resp, body := h.postMultipart(t, "/register", validFields(), raFile())
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "EMAIL TAKEN")
	assert.Contains(t, body, `value="Ana Souza"`, "values are kept for a retry")
	assert.NotContains(t, body, "abc123", "passwords are never echoed")
}

func TestRegisterPasswordMismatchSkipsAPI(t *testing.T) {
	api := newUsersAPI(t, http.StatusCreated, `{"id": "1"}`)
	h := newHarness(t, api.URL, nil)

	fields := validFields()
	fields["passwordConfirm"] = "other1"
	resp, body := h.postMultipart(t, "/register", fields, raFile())
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "passwords do not match")
	assert.Empty(t, api.Posted())
}

func TestRegisterInvalidListsEveryField(t *testing.T) {
	api := newUsersAPI(t, http.StatusCreated, `{"id": "1"}`)
	h := newHarness(t, api.URL, nil)

	fields := validFields()
	fields["email"] = "nope"
	fields["cpf"] = "1"
	resp, body := h.postMultipart(t, "/register", fields, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "invalid email")
	assert.Contains(t, body, "invalid CPF")
	assert.Contains(t, body, "send an RA photo")
	assert.Empty(t, api.Posted())
}

func TestRegisterUnreachableAPIShowsRetryBanner(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", nil)
	resp, body := h.postMultipart(t, "/register", validFields(), raFile())
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "COULD NOT REGISTER, PLEASE TRY AGAIN")
}

func TestRegisterUploadTooLarge(t *testing.T) {
	api := newUsersAPI(t, http.StatusCreated, `{"id": "1"}`)
	h := newHarness(t, api.URL, nil)

	resp, body := h.postMultipart(t, "/register", validFields(), map[string][]byte{"ra": bytes.Repeat([]byte{1}, 2048)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Contains(t, body, MsgFileTooLarge)
	assert.Empty(t, api.Posted())
}

// slowUsers holds every create-user call until release is closed.
type slowUsers struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (u *slowUsers) CreateUser(ctx context.Context, p *client.Payload) (*client.CreateUserResponse, error) {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()
	<-u.release
	return &client.CreateUserResponse{ID: "7"}, nil
}

func (u *slowUsers) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

func multipartBody(fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	for k, data := range files {
		part, _ := w.CreateFormFile(k, k+".png")
		_, _ = part.Write(data)
	}
	_ = w.Close()
	return &buf, w.FormDataContentType()
}

func TestRegisterWhileInFlightKeepsRunningAttempt(t *testing.T) {
	users := &slowUsers{release: make(chan struct{})}
	h := newHarness(t, "http://127.0.0.1:1", func(_ *config.Config, d *Deps) { d.Users = users })
	release := sync.OnceFunc(func() { close(users.release) })
	t.Cleanup(release)
	h.get(t, "/register")

	first := make(chan *http.Response, 1)
	go func() {
		body, ct := multipartBody(validFields(), raFile())
		resp, err := h.client.Post(h.web.URL+"/register", ct, body)
		if err == nil {
			resp.Body.Close()
		}
		first <- resp
	}()
	require.Eventually(t, func() bool { return users.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	fields := validFields()
	fields["name"] = "Bia Lima"
	resp, body := h.postMultipart(t, "/register", fields, raFile())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "A REGISTRATION IS ALREADY IN PROGRESS")
	assert.Contains(t, body, `value="Ana Souza"`)
	assert.NotContains(t, body, "Bia Lima")

	release()
	var done *http.Response
	select {
	case done = <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("first registration never answered")
	}
	require.NotNil(t, done)
	assert.Equal(t, http.StatusSeeOther, done.StatusCode)
	assert.Equal(t, "/login", done.Header.Get("Location"))
	assert.Equal(t, 1, users.Calls())
}

func TestRegisterRateLimited(t *testing.T) {
	api := newUsersAPI(t, http.StatusOK, `{"error": "no"}`)
	h := newHarness(t, api.URL, func(cfg *config.Config, _ *Deps) {
		cfg.RateLimit.PerSecond = 0.001
		cfg.RateLimit.Burst = 1
	})

	resp, _ := h.postMultipart(t, "/register", validFields(), raFile())
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, _ = h.postMultipart(t, "/register", validFields(), raFile())
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", nil)
	resp, body := h.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK\n", body)

	h.get(t, "/login")
	resp, body = h.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `ulift_http_requests_total{method="GET",route="/login",status="2xx"}`)
}

func TestStaticAssets(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", nil)
	resp, body := h.get(t, "/static/style.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, ".banner")
}

// chatService acks logins and broadcasts the names seen so far.
func newChatService(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	var names []string
	var conns []*websocket.Conn
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns = append(conns, conn)
		mu.Unlock()
		for {
			var f roster.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Event != roster.EventLogin {
				continue
			}
			var name string
			_ = json.Unmarshal(f.Args[0], &name)

			mu.Lock()
			names = append(names, name)
			ack, _ := roster.NewFrame(roster.EventAck, f.ID, true)
			_ = conn.WriteJSON(ack)
			update, _ := roster.NewFrame(roster.EventUserUpdate, 0, names)
			for _, c := range conns {
				_ = c.WriteJSON(update)
			}
			mu.Unlock()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatLoginAndRoster(t *testing.T) {
	chat := newChatService(t)
	h := newHarness(t, "http://127.0.0.1:1", func(_ *config.Config, d *Deps) {
		d.ChatURL = func(*http.Request) string { return "ws" + strings.TrimPrefix(chat.URL, "http") }
	})

	resp, body := h.get(t, "/chat")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "nobody yet")

	resp, _ = h.postForm(t, "/chat/login", url.Values{"name": {"ana"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/chat", resp.Header.Get("Location"))

	var got rosterResponse
	require.Eventually(t, func() bool {
		_, body := h.get(t, "/chat/roster")
		if json.Unmarshal([]byte(body), &got) != nil {
			return false
		}
		return len(got.Users) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ana", got.Name)
	assert.Equal(t, []string{"ana"}, got.Users)

	_, body = h.get(t, "/chat")
	assert.Contains(t, body, "<li>ana</li>")
}

func TestChatLoginRequiresName(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", nil)
	resp, body := h.postForm(t, "/chat/login", url.Values{"name": {"  "}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "name required")
}

func TestChatServiceDown(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", func(_ *config.Config, d *Deps) {
		d.ChatURL = func(*http.Request) string { return "ws://127.0.0.1:1/" }
	})
	resp, body := h.postForm(t, "/chat/login", url.Values{"name": {"ana"}})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, BannerChatDown)

	_, body = h.get(t, "/chat/roster")
	assert.JSONEq(t, `{"users":[]}`, body)
}
