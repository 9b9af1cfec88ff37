package email

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthapp/identity-service/internal/identity"
	"github.com/healthapp/identity-service/internal/logging"
)

type fakeMailer struct {
	mu   sync.Mutex
	jobs []Job
	fail bool
}

func (m *fakeMailer) SendVerificationEmail(_ context.Context, to, token string, role identity.Role) error {
	return m.record(Job{Kind: JobVerification, To: to, Token: token, Role: role})
}

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, to, token string, role identity.Role) error {
	return m.record(Job{Kind: JobPasswordReset, To: to, Token: token, Role: role})
}

func (m *fakeMailer) SendWelcomeEmail(_ context.Context, to, firstName string) error {
	return m.record(Job{Kind: JobWelcome, To: to, FirstName: firstName})
}

func (m *fakeMailer) record(job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	if m.fail {
		return errors.New("smtp down")
	}
	return nil
}

func (m *fakeMailer) delivered() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Job(nil), m.jobs...)
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(NewMemoryQueue(16), mailer, logging.NewDiscardLogger(), 3)

	ctx := context.Background()
	d.SendVerificationEmail(ctx, "a@x.com", "t1", identity.RolePatient)
	d.SendPasswordResetEmail(ctx, "b@x.com", "t2", identity.RoleDoctor)
	d.SendWelcomeEmail(ctx, "c@x.com", "Carol")

	d.Start()
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(shutdownCtx))

	assert.ElementsMatch(t, []Job{
		{Kind: JobVerification, To: "a@x.com", Token: "t1", Role: identity.RolePatient},
		{Kind: JobPasswordReset, To: "b@x.com", Token: "t2", Role: identity.RoleDoctor},
		{Kind: JobWelcome, To: "c@x.com", FirstName: "Carol"},
	}, mailer.delivered())
}

func TestDispatcher_FailuresAreSwallowed(t *testing.T) {
	mailer := &fakeMailer{fail: true}
	q := NewMemoryQueue(1)
	d := NewDispatcher(q, mailer, logging.NewDiscardLogger(), 1)

	ctx := context.Background()
	d.SendWelcomeEmail(ctx, "a@x.com", "A")
	// queue full: dropped and logged, caller unaffected
	d.SendWelcomeEmail(ctx, "b@x.com", "B")
	assert.Equal(t, 1, q.Len())

	d.Start()
	require.NoError(t, d.Shutdown(ctx))
	assert.Len(t, mailer.delivered(), 1)

	// after shutdown enqueue fails quietly
	d.SendWelcomeEmail(ctx, "c@x.com", "C")
}

func TestDispatcher_RejectsUnknownKind(t *testing.T) {
	d := NewDispatcher(NewMemoryQueue(1), &fakeMailer{}, logging.NewDiscardLogger(), 1)
	assert.Error(t, d.deliver(context.Background(), Job{Kind: "sms"}))
}

// newStalledRedisClient returns a client for a server that accepts
// connections but never answers
func newStalledRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	client := redis.NewClient(&redis.Options{Addr: ln.Addr().String()})
	t.Cleanup(func() {
		client.Close()
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return client
}

func TestDispatcher_StalledRedisDoesNotBlockSenders(t *testing.T) {
	d := NewDispatcher(NewRedisQueue(newStalledRedisClient(t), ""), &fakeMailer{}, logging.NewDiscardLogger(), 1,
		WithPushTimeout(100*time.Millisecond))

	reqCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	d.SendVerificationEmail(reqCtx, "a@x.com", "t1", identity.RolePatient)
	d.SendPasswordResetEmail(reqCtx, "a@x.com", "t2", identity.RolePatient)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 2, d.inbox.Len())

	// the forwarder gives up on each job after the push timeout
	require.NoError(t, d.inbox.Close())
	d.forwarderWG.Add(1)
	start = time.Now()
	d.forward(context.Background())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 0, d.inbox.Len())
}

func TestDispatcher_ForwardsToRedis(t *testing.T) {
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { client.Close() })

	mailer := &fakeMailer{}
	d := NewDispatcher(NewRedisQueue(client, ""), mailer, logging.NewDiscardLogger(), 2, WithBufferSize(8))
	require.True(t, d.forwarding)
	d.Start()

	ctx := context.Background()
	d.SendVerificationEmail(ctx, "a@x.com", "t1", identity.RoleDoctor)
	d.SendWelcomeEmail(ctx, "b@x.com", "Bob")

	assert.Eventually(t, func() bool { return len(mailer.delivered()) == 2 }, 5*time.Second, 10*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(shutdownCtx))

	assert.ElementsMatch(t, []Job{
		{Kind: JobVerification, To: "a@x.com", Token: "t1", Role: identity.RoleDoctor},
		{Kind: JobWelcome, To: "b@x.com", FirstName: "Bob"},
	}, mailer.delivered())
}
