package particlecmder_test

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	particlecmder "github.com/saamerm/particle/cmd/particle"
	"github.com/saamerm/particle/pkg/credentials"
)

const publishedAt = "2026-10-15T10:00:00Z"

// fakeCloud serves the endpoints the commands call. The event stream sends
// frames and then ends.
type fakeCloud struct {
	*httptest.Server

	mu          sync.Mutex
	logins      int
	published   url.Values
	streamPath  string
	streamToken string
	frames      []string
}

func newFakeCloud() *fakeCloud {
	f := &fakeCloud{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("password") == "wrong" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"User credentials are invalid"}`)
			return
		}

		f.mu.Lock()
		f.logins++
		n := f.logins
		f.mu.Unlock()

		fmt.Fprintf(w, `{"access_token":"tok-%d","refresh_token":"ref-%d","token_type":"bearer","expires_in":3600}`, n, n)
	})

	mux.HandleFunc("POST /v1/clients", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"ok":true,"client":{"name":"particle-cli","type":"installed","id":"cli-123","secret":"s3cret"}}`)
	})

	mux.HandleFunc("GET /v1/devices", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[{"id":"dev1","name":"porch","connected":true,"platform_id":6},{"id":"dev2","name":"garage","connected":false,"platform_id":12}]`)
	})

	mux.HandleFunc("GET /v1/devices/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "dev1" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"ok":false,"error":"Permission Denied"}`)
			return
		}
		fmt.Fprint(w, `{"id":"dev1","name":"porch","connected":true,"platform_id":6,"functions":["led"],"variables":{"temp":"double"}}`)
	})

	mux.HandleFunc("POST /v1/devices/events", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.published = r.PostForm
		f.mu.Unlock()
		fmt.Fprint(w, `{"ok":true}`)
	})

	stream := func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.streamPath = r.URL.Path
		f.streamToken = r.URL.Query().Get("access_token")
		frames := f.frames
		f.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, frame := range frames {
			fmt.Fprint(w, frame)
		}
	}
	mux.HandleFunc("GET /v1/devices/events", stream)
	mux.HandleFunc("GET /v1/devices/events/{prefix}", stream)
	mux.HandleFunc("GET /v1/events/{prefix}", stream)

	f.Server = httptest.NewServer(mux)
	return f
}

func frame(device, name, data string) string {
	return fmt.Sprintf("event: %s\ndata: {\"data\":%q,\"ttl\":60,\"published_at\":%q,\"coreid\":%q}\n\n",
		name, data, publishedAt, device)
}

var _ = Describe("particle", func() {
	var (
		fake      *fakeCloud
		configDir string
	)

	execute := func(stdin string, args ...string) (string, error) {
		cmd := particlecmder.NewParticleCmd()
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(io.Discard)
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetArgs(append(args, "--config-dir", configDir, "--api-url", fake.URL))

		err := cmd.Execute()
		return ansi.Strip(out.String()), err
	}

	login := func() {
		_, err := execute("hunter2\n", "login", "-u", "me@example.com")
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		fake = newFakeCloud()
		DeferCleanup(fake.Close)

		var err error
		configDir, err = os.MkdirTemp("", "particle-cmd-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, configDir)
	})

	It("registers every subcommand", func() {
		cmd := particlecmder.NewParticleCmd()

		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}

		Expect(names).To(ContainElements(
			"login", "logout", "whoami", "signup", "devices",
			"publish", "listen", "events", "config", "version",
		))
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("api-url")).NotTo(BeNil())
	})

	Describe("login", func() {
		It("stores the session read from piped input", func() {
			out, err := execute("hunter2\n", "login", "-u", "me@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Logged in as me@example.com"))

			mgr, err := credentials.NewManager(configDir)
			Expect(err).NotTo(HaveOccurred())
			username, tok, err := mgr.Session()
			Expect(err).NotTo(HaveOccurred())
			Expect(username).To(Equal("me@example.com"))
			Expect(tok.Token).To(Equal("tok-1"))
			Expect(tok.RefreshToken).To(Equal("ref-1"))
		})

		It("prompts for the username when the flag is missing", func() {
			_, err := execute("me@example.com\nhunter2\n", "login")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("", "whoami")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HavePrefix("me@example.com\n"))
		})

		It("reports rejected credentials", func() {
			_, err := execute("wrong\n", "login", "-u", "me@example.com")
			Expect(err).To(MatchError(ContainSubstring("User credentials are invalid")))
		})

		It("rejects an empty password", func() {
			_, err := execute("\n", "login", "-u", "me@example.com")
			Expect(err).To(MatchError(ContainSubstring("password cannot be empty")))
		})

		It("creates and stores an OAuth client on request", func() {
			_, err := execute("hunter2\n", "login", "-u", "me@example.com", "--create-client")
			Expect(err).NotTo(HaveOccurred())

			mgr, err := credentials.NewManager(configDir)
			Expect(err).NotTo(HaveOccurred())
			client, err := mgr.OAuthClient()
			Expect(err).NotTo(HaveOccurred())
			Expect(client).To(Equal(&credentials.OAuthClient{ID: "cli-123", Secret: "s3cret"}))

			_, tok, err := mgr.Session()
			Expect(err).NotTo(HaveOccurred())
			Expect(tok.Token).To(Equal("tok-2"))
		})
	})

	Describe("logout", func() {
		It("forgets the session", func() {
			login()

			out, err := execute("", "logout")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Logged out me@example.com"))

			_, err = execute("", "whoami")
			Expect(err).To(MatchError(ContainSubstring("not logged in")))
		})
	})

	Describe("devices", func() {
		It("requires a login", func() {
			_, err := execute("", "devices", "list")
			Expect(err).To(MatchError(ContainSubstring("not logged in")))
		})

		It("lists devices in columns", func() {
			login()

			out, err := execute("", "devices", "list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("ID"))
			Expect(out).To(MatchRegexp(`dev1\s+porch\s+online\s+6`))
			Expect(out).To(MatchRegexp(`dev2\s+garage\s+offline\s+12`))
		})

		It("shows one device", func() {
			login()

			out, err := execute("", "devices", "get", "dev1")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("porch"))
			Expect(out).To(ContainSubstring("led"))
		})

		It("reports an unknown device", func() {
			login()

			_, err := execute("", "devices", "get", "nope")
			Expect(err).To(MatchError(ContainSubstring("Permission Denied")))
		})
	})

	Describe("publish", func() {
		It("publishes the joined data", func() {
			login()

			_, err := execute("", "publish", "temperature", "21.5", "C", "--private", "--ttl", "120")
			Expect(err).NotTo(HaveOccurred())

			fake.mu.Lock()
			defer fake.mu.Unlock()
			Expect(fake.published.Get("name")).To(Equal("temperature"))
			Expect(fake.published.Get("data")).To(Equal("21.5 C"))
			Expect(fake.published.Get("private")).To(Equal("true"))
			Expect(fake.published.Get("ttl")).To(Equal("120"))
		})
	})

	Describe("listen and events", func() {
		BeforeEach(func() {
			fake.frames = []string{
				frame("dev1", "temperature", "21.5"),
				"event: broken\ndata: not json\n\n",
				frame("dev2", "motion", "yes"),
			}
		})

		It("prints the events of the user's devices until the stream ends", func() {
			login()

			out, err := execute("", "listen")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Listening to " + fake.URL + "/v1/devices/events"))
			Expect(out).To(ContainSubstring("temperature"))
			Expect(out).To(ContainSubstring("motion"))
			Expect(out).NotTo(ContainSubstring("broken"))

			fake.mu.Lock()
			defer fake.mu.Unlock()
			Expect(fake.streamToken).To(Equal("tok-1"))
		})

		It("subscribes by prefix and device", func() {
			login()

			_, err := execute("", "listen", "temp")
			Expect(err).NotTo(HaveOccurred())
			fake.mu.Lock()
			Expect(fake.streamPath).To(Equal("/v1/events/temp"))
			fake.mu.Unlock()

			_, err = execute("", "listen", "temp", "--mine")
			Expect(err).NotTo(HaveOccurred())
			fake.mu.Lock()
			Expect(fake.streamPath).To(Equal("/v1/devices/events/temp"))
			fake.mu.Unlock()
		})

		It("prints the raw stream with --raw", func() {
			login()

			out, err := execute("", "listen", "--raw")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("data: not json"))
		})

		It("records events that the events command reads back", func() {
			login()
			dbPath := filepath.Join(configDir, "log.db")

			_, err := execute("", "listen", "--sqlite", dbPath)
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("", "events", "--sqlite", dbPath, "--count")
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(out)).To(Equal("2"))

			out, err = execute("", "events", "--sqlite", dbPath, "--device", "dev1")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("temperature"))
			Expect(out).To(ContainSubstring("21.5"))
			Expect(out).NotTo(ContainSubstring("motion"))
		})

		It("records to events.db in the config dir with --record", func() {
			login()

			_, err := execute("", "listen", "--record")
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Join(configDir, "events.db")).To(BeAnExistingFile())

			out, err := execute("", "events", "--name", "mot")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("motion"))
			Expect(out).NotTo(ContainSubstring("temperature"))
		})

		It("rejects a bad reconnect delay", func() {
			login()

			_, err := execute("", "listen", "--reconnect-delay", "soon")
			Expect(err).To(MatchError(ContainSubstring("invalid reconnect delay")))
		})
	})

	Describe("config", func() {
		It("sets, gets and lists values", func() {
			_, err := execute("", "config", "set", "stream.reconnect_delay", "10s")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("", "config", "get", "stream.reconnect_delay")
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(out)).To(Equal("10s"))

			out, err = execute("", "config", "list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(MatchRegexp(`stream\.reconnect_delay\s+10s`))
			Expect(out).To(MatchRegexp(`cloud\.api_url\s+https://api\.particle\.io`))
		})

		It("rejects unknown keys", func() {
			_, err := execute("", "config", "get", "proxy.upstream")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("rejects invalid values", func() {
			_, err := execute("", "config", "set", "worker.count", "many")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("version", func() {
		It("prints the version", func() {
			out, err := execute("", "version", "--short")
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(out)).To(Equal("dev"))
		})
	})
})
