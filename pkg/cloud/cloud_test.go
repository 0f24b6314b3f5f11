package cloud_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/saamerm/particle/pkg/cloud"
	"github.com/saamerm/particle/pkg/particle"
)

// fakeCloud records the last request it saw and answers with canned bodies
// keyed by "METHOD /path".
type fakeCloud struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]cannedResponse
	form      url.Values
	header    http.Header
	path      string
}

type cannedResponse struct {
	status int
	body   string
}

func newFakeCloud() *fakeCloud {
	f := &fakeCloud{responses: map[string]cannedResponse{}}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		f.mu.Lock()
		f.form = r.PostForm
		f.header = r.Header.Clone()
		f.path = r.URL.Path
		canned, ok := f.responses[r.Method+" "+r.URL.Path]
		f.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(canned.status)
		_, _ = w.Write([]byte(canned.body))
	}))
	return f
}

func (f *fakeCloud) respond(route string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[route] = cannedResponse{status: status, body: body}
}

func (f *fakeCloud) lastForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

func (f *fakeCloud) lastHeader() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.header
}

var _ = Describe("Client", func() {
	var (
		fake   *fakeCloud
		client *cloud.Client
		ctx    context.Context
		now    time.Time
	)

	BeforeEach(func() {
		fake = newFakeCloud()
		ctx = context.Background()
		now = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
		client = cloud.New(cloud.Config{
			APIURL: fake.URL,
			Now:    func() time.Time { return now },
		})
	})

	AfterEach(func() {
		fake.Close()
	})

	loggedIn := func() {
		client.SetToken(&particle.AccessToken{Token: "tok", ExpiresAt: now.Add(time.Hour)}, "me@example.com")
	}

	Describe("New", func() {
		It("applies defaults", func() {
			c := cloud.New(cloud.Config{})
			Expect(c.APIURL()).To(Equal(cloud.DefaultAPIURL))

			id, secret := c.OAuthClient()
			Expect(id).To(Equal(cloud.DefaultClientID))
			Expect(secret).To(Equal(cloud.DefaultClientSecret))
			Expect(c.IsLoggedIn()).To(BeFalse())
		})

		It("trims a trailing slash from the api url", func() {
			c := cloud.New(cloud.Config{APIURL: "https://example.com/"})
			Expect(c.APIURL()).To(Equal("https://example.com"))
		})

		It("creates independent clients", func() {
			other := cloud.New(cloud.Config{APIURL: fake.URL})
			loggedIn()
			Expect(client.IsLoggedIn()).To(BeTrue())
			Expect(other.IsLoggedIn()).To(BeFalse())
		})
	})

	Describe("Login", func() {
		It("exchanges credentials for a token", func() {
			fake.respond("POST /oauth/token", http.StatusOK,
				`{"access_token":"abc","refresh_token":"def","token_type":"bearer","expires_in":3600}`)

			tok, err := client.Login(ctx, "me@example.com", "secret")
			Expect(err).NotTo(HaveOccurred())
			Expect(tok.Token).To(Equal("abc"))
			Expect(tok.RefreshToken).To(Equal("def"))
			Expect(tok.ExpiresAt).To(Equal(now.Add(time.Hour)))

			form := fake.lastForm()
			Expect(form.Get("grant_type")).To(Equal("password"))
			Expect(form.Get("username")).To(Equal("me@example.com"))
			Expect(form.Get("password")).To(Equal("secret"))
			Expect(form.Get("client_id")).To(Equal(cloud.DefaultClientID))
			Expect(form.Get("client_secret")).To(Equal(cloud.DefaultClientSecret))

			Expect(client.IsLoggedIn()).To(BeTrue())
			Expect(client.Username()).To(Equal("me@example.com"))
		})

		It("returns an upstream error for bad credentials", func() {
			fake.respond("POST /oauth/token", http.StatusBadRequest,
				`{"error":"invalid_grant","error_description":"User credentials are invalid"}`)

			_, err := client.Login(ctx, "me@example.com", "wrong")
			Expect(err).To(MatchError(particle.ErrUpstream))

			var upstream *particle.UpstreamError
			Expect(err).To(BeAssignableToTypeOf(upstream))
			upstream = err.(*particle.UpstreamError)
			Expect(upstream.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(upstream.Message).To(Equal("User credentials are invalid"))
			Expect(client.IsLoggedIn()).To(BeFalse())
		})

		It("rejects empty credentials without a request", func() {
			_, err := client.Login(ctx, "", "")
			Expect(err).To(MatchError(particle.ErrInvalidInput))
			Expect(fake.lastForm()).To(BeNil())
		})

		It("reports an unreachable cloud as a network error", func() {
			fake.Close()
			_, err := client.Login(ctx, "me@example.com", "secret")
			Expect(err).To(MatchError(particle.ErrNetwork))
		})

		It("reports an undecodable body as a parse error", func() {
			fake.respond("POST /oauth/token", http.StatusOK, `not json`)
			_, err := client.Login(ctx, "me@example.com", "secret")
			Expect(err).To(MatchError(particle.ErrParse))
		})
	})

	Describe("RefreshToken", func() {
		It("requires a refresh token", func() {
			_, err := client.RefreshToken(ctx)
			Expect(err).To(MatchError(particle.ErrInvalidState))
		})

		It("keeps the refresh token when the response omits one", func() {
			client.SetToken(&particle.AccessToken{Token: "old", RefreshToken: "refresh"}, "me@example.com")
			fake.respond("POST /oauth/token", http.StatusOK, `{"access_token":"new","expires_in":60}`)

			tok, err := client.RefreshToken(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(tok.Token).To(Equal("new"))
			Expect(tok.RefreshToken).To(Equal("refresh"))
			Expect(client.Username()).To(Equal("me@example.com"))

			form := fake.lastForm()
			Expect(form.Get("grant_type")).To(Equal("refresh_token"))
			Expect(form.Get("refresh_token")).To(Equal("refresh"))
		})
	})

	Describe("Logout", func() {
		It("forgets the token", func() {
			loggedIn()
			client.Logout()
			Expect(client.IsLoggedIn()).To(BeFalse())
			Expect(client.Token()).To(BeNil())
			Expect(client.Username()).To(BeEmpty())
		})
	})

	Describe("CreateOAuthClient", func() {
		It("switches to the created client credentials", func() {
			fake.respond("POST /v1/clients", http.StatusOK,
				`{"ok":true,"client":{"name":"app","type":"installed","id":"app-123","secret":"shh"}}`)

			Expect(client.CreateOAuthClient(ctx, "tok", "app")).To(Succeed())

			form := fake.lastForm()
			Expect(form.Get("name")).To(Equal("app"))
			Expect(form.Get("type")).To(Equal("installed"))
			Expect(form.Get("access_token")).To(Equal("tok"))

			id, secret := client.OAuthClient()
			Expect(id).To(Equal("app-123"))
			Expect(secret).To(Equal("shh"))
		})

		It("keeps the previous credentials on failure", func() {
			fake.respond("POST /v1/clients", http.StatusOK, `{"ok":false}`)

			Expect(client.CreateOAuthClient(ctx, "tok", "app")).To(MatchError(particle.ErrUpstream))
			id, _ := client.OAuthClient()
			Expect(id).To(Equal(cloud.DefaultClientID))
		})
	})

	Describe("Signup", func() {
		It("succeeds when the cloud says ok", func() {
			fake.respond("POST /v1/users", http.StatusOK, `{"ok":true}`)
			Expect(client.Signup(ctx, "new@example.com", "secret")).To(Succeed())
			Expect(fake.lastForm().Get("username")).To(Equal("new@example.com"))
		})

		It("surfaces the first error message", func() {
			fake.respond("POST /v1/users", http.StatusOK, `{"ok":false,"errors":["username must be unique","other"]}`)
			err := client.Signup(ctx, "taken@example.com", "secret")
			Expect(err).To(MatchError(ContainSubstring("username must be unique")))
		})
	})

	Describe("device calls", func() {
		It("requires a login", func() {
			_, err := client.Devices(ctx)
			Expect(err).To(MatchError(particle.ErrInvalidState))
			Expect(cloud.IsAuthError(err)).To(BeTrue())
		})

		It("rejects an expired token", func() {
			client.SetToken(&particle.AccessToken{Token: "tok", ExpiresAt: now.Add(-time.Second)}, "")
			_, err := client.Devices(ctx)
			Expect(err).To(MatchError(ContainSubstring("expired")))
		})

		It("lists devices with a bearer token", func() {
			loggedIn()
			fake.respond("GET /v1/devices", http.StatusOK,
				`[{"id":"dev1","name":"kitchen","connected":true,"platform_id":6},{"id":"dev2","name":"garage"}]`)

			devices, err := client.Devices(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(devices).To(HaveLen(2))
			Expect(devices[0].ID).To(Equal("dev1"))
			Expect(devices[0].Connected).To(BeTrue())
			Expect(devices[0].PlatformID).To(Equal(6))
			Expect(devices[1].Name).To(Equal("garage"))
			Expect(fake.lastHeader().Get("Authorization")).To(Equal("Bearer tok"))
		})

		It("gets a single device", func() {
			loggedIn()
			fake.respond("GET /v1/devices/dev1", http.StatusOK, `{"id":"dev1","name":"kitchen"}`)

			device, err := client.Device(ctx, "dev1")
			Expect(err).NotTo(HaveOccurred())
			Expect(device.Name).To(Equal("kitchen"))
		})

		It("flags a rejected token as an auth error", func() {
			loggedIn()
			fake.respond("GET /v1/devices", http.StatusUnauthorized, `{"error":"invalid_token"}`)

			_, err := client.Devices(ctx)
			Expect(err).To(MatchError(particle.ErrUpstream))
			Expect(cloud.IsAuthError(err)).To(BeTrue())
		})

		It("claims a device", func() {
			loggedIn()
			fake.respond("POST /v1/devices", http.StatusOK, `{"ok":true,"user_id":"u1","id":"dev3","connected":true}`)

			Expect(client.ClaimDevice(ctx, "dev3")).To(Succeed())
			Expect(fake.lastForm().Get("id")).To(Equal("dev3"))
		})

		It("reports a failed claim", func() {
			loggedIn()
			fake.respond("POST /v1/devices", http.StatusOK, `{"ok":false,"errors":["device is owned by another user"]}`)

			err := client.ClaimDevice(ctx, "dev3")
			Expect(err).To(MatchError(ContainSubstring("owned by another user")))
		})
	})

	Describe("PublishEvent", func() {
		BeforeEach(loggedIn)

		It("sends the event fields", func() {
			fake.respond("POST /v1/devices/events", http.StatusOK, `{"ok":true}`)

			err := client.PublishEvent(ctx, particle.PublishRequest{Name: "temp", Data: "21.5", Private: true, TTL: 60})
			Expect(err).NotTo(HaveOccurred())

			form := fake.lastForm()
			Expect(form.Get("name")).To(Equal("temp"))
			Expect(form.Get("data")).To(Equal("21.5"))
			Expect(form.Get("private")).To(Equal("true"))
			Expect(form.Get("ttl")).To(Equal("60"))
		})

		It("omits a zero ttl", func() {
			fake.respond("POST /v1/devices/events", http.StatusOK, `{"ok":true}`)

			Expect(client.PublishEvent(ctx, particle.PublishRequest{Name: "temp"})).To(Succeed())
			Expect(fake.lastForm()).NotTo(HaveKey("ttl"))
		})

		It("fails when the response is not ok", func() {
			fake.respond("POST /v1/devices/events", http.StatusOK, `{"ok":false}`)

			err := client.PublishEvent(ctx, particle.PublishRequest{Name: "temp"})
			Expect(err).To(MatchError(particle.ErrUpstream))
		})

		It("treats an ok-looking string as failure", func() {
			fake.respond("POST /v1/devices/events", http.StatusOK, `{"ok":false,"message":"\"ok\":true"}`)

			err := client.PublishEvent(ctx, particle.PublishRequest{Name: "temp"})
			Expect(err).To(HaveOccurred())
		})

		It("validates the request", func() {
			Expect(client.PublishEvent(ctx, particle.PublishRequest{})).To(MatchError(particle.ErrInvalidInput))
			Expect(client.PublishEvent(ctx, particle.PublishRequest{Name: "x", TTL: -1})).To(MatchError(particle.ErrInvalidInput))
		})
	})

	Describe("subscriptions", func() {
		It("requires a login", func() {
			_, err := client.SubscribeToMyDevicesEventsWithPrefix("")
			Expect(err).To(MatchError(particle.ErrInvalidState))
		})

		It("builds stream urls", func() {
			loggedIn()

			all, err := client.SubscribeToAllEventsWithPrefix("temp")
			Expect(err).NotTo(HaveOccurred())
			Expect(all.URL()).To(Equal(fake.URL + "/v1/events/temp"))

			mine, err := client.SubscribeToMyDevicesEventsWithPrefix("")
			Expect(err).NotTo(HaveOccurred())
			Expect(mine.URL()).To(Equal(fake.URL + "/v1/devices/events"))

			mineTemp, err := client.SubscribeToMyDevicesEventsWithPrefix("temp")
			Expect(err).NotTo(HaveOccurred())
			Expect(mineTemp.URL()).To(Equal(fake.URL + "/v1/devices/events/temp"))

			one, err := client.SubscribeToDeviceEventsWithPrefix("dev1", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(one.URL()).To(Equal(fake.URL + "/v1/devices/dev1/events"))
		})

		It("requires a prefix for public events", func() {
			loggedIn()
			_, err := client.SubscribeToAllEventsWithPrefix("")
			Expect(err).To(MatchError(particle.ErrInvalidInput))
		})

		It("requires a device id", func() {
			loggedIn()
			_, err := client.SubscribeToDeviceEventsWithPrefix("", "temp")
			Expect(err).To(MatchError(particle.ErrInvalidInput))
		})
	})
})
