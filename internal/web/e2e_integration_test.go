// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

//go:build integration

package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/wordapp/wordapp/internal/auth"
	authpg "github.com/wordapp/wordapp/internal/auth/postgres"
	"github.com/wordapp/wordapp/internal/store"
	"github.com/wordapp/wordapp/internal/web"
)

func TestWebEndToEnd(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Web End-to-End Suite")
}

type capturedMail struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (c *capturedMail) put(kind, email, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[kind+":"+email] = token
}

func (c *capturedMail) get(kind, email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[kind+":"+email]
}

func (c *capturedMail) SendActivation(_ context.Context, user *auth.User, token string) error {
	c.put("activation", user.Email, token)
	return nil
}

func (c *capturedMail) SendPasswordReset(_ context.Context, user *auth.User, token string) error {
	c.put("reset", user.Email, token)
	return nil
}

var _ = Describe("Account flows over HTTP", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		pool      *pgxpool.Pool
		server    *web.Server
		mail      *capturedMail
		base      string
	)

	newClient := func() *http.Client {
		jar, err := cookiejar.New(nil)
		Expect(err).NotTo(HaveOccurred())
		return &http.Client{Jar: jar, Transport: &http.Transport{DisableKeepAlives: true}}
	}

	send := func(client *http.Client, method, path, body string) (int, map[string]any) {
		req, err := http.NewRequestWithContext(ctx, method, base+path, strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = resp.Body.Close() }()

		out := map[string]any{}
		if resp.StatusCode != http.StatusNoContent {
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		}
		return resp.StatusCode, out
	}

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("wordapp_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2)),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.Open(ctx, connStr, store.OpenOptions{MaxConns: 4})
		Expect(err).NotTo(HaveOccurred())

		hasher, err := auth.NewPasswordHasher(auth.HasherConfig{Algorithm: auth.AlgorithmBcrypt, TestMode: true})
		Expect(err).NotTo(HaveOccurred())
		mail = &capturedMail{tokens: map[string]string{}}
		svc, err := auth.NewService(authpg.NewUserRepository(pool), hasher, mail)
		Expect(err).NotTo(HaveOccurred())

		server, err = web.NewServer(svc, web.Options{
			Addr:   "127.0.0.1:0",
			Secret: "integration-secret-integration-secret",
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = server.Start()
		Expect(err).NotTo(HaveOccurred())
		base = "http://" + server.Addr()
	})

	AfterAll(func() {
		if server != nil {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_ = server.Stop(stopCtx)
		}
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	It("signs up, activates, remembers and resets", func() {
		alice := newClient()

		status, body := send(alice, http.MethodPost, "/signup",
			`{"name":"Alice","email":"Alice@Example.com","password":"foobar","password_confirmation":"foobar"}`)
		Expect(status).To(Equal(http.StatusCreated))
		Expect(body["user"]).To(HaveKeyWithValue("email", "alice@example.com"))

		status, _ = send(alice, http.MethodPost, "/login", `{"email":"alice@example.com","password":"foobar"}`)
		Expect(status).To(Equal(http.StatusForbidden))

		token := mail.get("activation", "alice@example.com")
		Expect(token).NotTo(BeEmpty())
		status, body = send(alice, http.MethodGet,
			"/account_activations/"+url.PathEscape(token)+"/edit?email=alice%40example.com", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["user"]).To(HaveKeyWithValue("activated", true))

		status, _ = send(alice, http.MethodGet, "/me", "")
		Expect(status).To(Equal(http.StatusOK))

		laptop := newClient()
		status, _ = send(laptop, http.MethodPost, "/login",
			`{"email":"alice@example.com","password":"foobar","remember_me":true}`)
		Expect(status).To(Equal(http.StatusOK))

		status, _ = send(alice, http.MethodPost, "/password_resets", `{"email":"alice@example.com"}`)
		Expect(status).To(Equal(http.StatusAccepted))
		reset := mail.get("reset", "alice@example.com")
		Expect(reset).NotTo(BeEmpty())

		status, _ = send(alice, http.MethodPatch, "/password_resets/"+url.PathEscape(reset),
			`{"email":"alice@example.com","password":"foobaz","password_confirmation":"foobaz"}`)
		Expect(status).To(Equal(http.StatusOK))

		status, _ = send(newClient(), http.MethodPost, "/login", `{"email":"alice@example.com","password":"foobar"}`)
		Expect(status).To(Equal(http.StatusUnauthorized))
		status, _ = send(newClient(), http.MethodPost, "/login", `{"email":"alice@example.com","password":"foobaz"}`)
		Expect(status).To(Equal(http.StatusOK))

		status, _ = send(alice, http.MethodDelete, "/logout", "")
		Expect(status).To(Equal(http.StatusNoContent))
		status, body = send(alice, http.MethodGet, "/me", "")
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body).To(HaveKeyWithValue("login_url", "/login"))
	})

	It("rejects a duplicate email regardless of case", func() {
		client := newClient()
		payload := `{"name":"Bob","email":"bob@example.com","password":"foobar","password_confirmation":"foobar"}`
		status, _ := send(client, http.MethodPost, "/signup", payload)
		Expect(status).To(Equal(http.StatusCreated))

		status, body := send(client, http.MethodPost, "/signup", strings.Replace(payload, "bob@", "BOB@", 1))
		Expect(status).To(Equal(http.StatusUnprocessableEntity))
		Expect(body["fields"]).To(HaveKey("email"))
	})
})
