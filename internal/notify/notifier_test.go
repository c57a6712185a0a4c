package notify_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfstack/lending-go/internal/directory"
	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/notify"
)

var (
	aliceID = uuid.MustParse("e1111111-1111-1111-1111-111111111111")
	bobID   = uuid.MustParse("e2222222-2222-2222-2222-222222222222")

	alice = directory.User{ID: aliceID, Email: "alice@example.com", FirstName: "Alice", LastName: "Archer"}
	bob   = directory.User{ID: bobID, Email: "bob@example.com", FirstName: "Bob", LastName: "Builder"}
)

type fakeDebtors struct {
	mu            sync.Mutex
	notifications []domain.DebtorNotification
	err           error
	calls         int
	entered       chan struct{}
	release       chan struct{}
}

func (f *fakeDebtors) GetExpiredLoans(_ context.Context) ([]domain.DebtorNotification, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	return f.notifications, f.err
}

func (f *fakeDebtors) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

type fakeDirectory struct {
	mu        sync.Mutex
	users     []directory.User
	countErr  error
	failPages map[int]bool
	pageSize  int
	listCalls int
}

func (f *fakeDirectory) GetUserCount(_ context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}

	return len(f.users), nil
}

func (f *fakeDirectory) ListUsers(_ context.Context, offset int, limit int) ([]directory.User, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()

	if f.failPages[offset/f.pageSize] {
		return nil, errors.New("page unavailable")
	}

	if offset >= len(f.users) {
		return []directory.User{}, nil
	}

	end := min(offset+limit, len(f.users))

	return f.users[offset:end], nil
}

func (f *fakeDirectory) UserExists(_ context.Context, userID uuid.UUID) (bool, error) {
	for _, user := range f.users {
		if user.ID == userID {
			return true, nil
		}
	}

	return false, nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	failFor map[string]bool
}

func (f *fakeMailer) Send(_ context.Context, to string, subject string, htmlBody string) error {
	if f.failFor[to] {
		return errors.New("relay rejected recipient")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: htmlBody})

	return nil
}

func (f *fakeMailer) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	recipients := make([]string, 0, len(f.sent))
	for _, mail := range f.sent {
		recipients = append(recipients, mail.to)
	}

	return recipients
}

func debtorsFor(userIDs ...uuid.UUID) []domain.DebtorNotification {
	notifications := make([]domain.DebtorNotification, 0, len(userIDs))
	for _, userID := range userIDs {
		notifications = append(notifications, domain.DebtorNotification{
			UserID: userID,
			Briefs: []domain.Brief{{BookTitle: "Animal Farm", AuthorName: "George Orwell"}},
		})
	}

	return notifications
}

func Test_Scheduler_SendsOneEmailPerDebtor(t *testing.T) {
	debtors := &fakeDebtors{notifications: debtorsFor(aliceID, bobID)}
	users := &fakeDirectory{users: []directory.User{alice, bob}, pageSize: 50}
	mailer := &fakeMailer{}

	scheduler := notify.NewScheduler(debtors, users, mailer, notify.WithPageSize(50))

	scheduler.RunNow(t.Context())

	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, mailer.sentTo())

	require.NotEmpty(t, mailer.sent)
	assert.Equal(t, "Overdue library loans", mailer.sent[0].subject)
	assert.True(t, strings.Contains(mailer.sent[0].body, "Animal Farm"))
	assert.True(t, strings.Contains(mailer.sent[0].body, "George Orwell"))
}

func Test_Scheduler_ZeroPageSizeKeepsDefaultAndCompletesRun(t *testing.T) {
	debtors := &fakeDebtors{notifications: debtorsFor(aliceID, bobID)}
	users := &fakeDirectory{users: []directory.User{alice, bob}, pageSize: 50}
	mailer := &fakeMailer{}

	scheduler := notify.NewScheduler(debtors, users, mailer,
		notify.WithPageSize(0),
		notify.WithInterval(0),
		notify.WithRunTimeout(-time.Second))

	assert.NotPanics(t, func() {
		scheduler.RunNow(t.Context())
	})

	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, mailer.sentTo())
}

func Test_Scheduler_SkipsTickWhileRunInProgress(t *testing.T) {
	debtors := &fakeDebtors{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	users := &fakeDirectory{pageSize: 50}
	mailer := &fakeMailer{}

	scheduler := notify.NewScheduler(debtors, users, mailer, notify.WithPageSize(50))

	done := make(chan struct{})
	go func() {
		scheduler.RunNow(t.Context())
		close(done)
	}()

	<-debtors.entered

	// A tick arriving mid-run must be dropped, not queued.
	scheduler.RunNow(t.Context())
	assert.Equal(t, 1, debtors.callCount())

	close(debtors.release)
	<-done

	// With the guard released the next trigger runs again.
	debtors.release = nil
	debtors.entered = nil
	scheduler.RunNow(t.Context())
	assert.Equal(t, 2, debtors.callCount())
}

func Test_Scheduler_NoDebtorsMeansNoDirectoryCalls(t *testing.T) {
	debtors := &fakeDebtors{}
	users := &fakeDirectory{users: []directory.User{alice}, pageSize: 50}
	mailer := &fakeMailer{}

	scheduler := notify.NewScheduler(debtors, users, mailer, notify.WithPageSize(50))

	scheduler.RunNow(t.Context())

	assert.Zero(t, users.listCalls)
	assert.Empty(t, mailer.sent)
}

func Test_Scheduler_Enrichment(t *testing.T) {
	t.Run("unresolved_debtors_are_dropped_from_the_batch", func(t *testing.T) {
		debtors := &fakeDebtors{notifications: debtorsFor(aliceID, bobID)}
		users := &fakeDirectory{users: []directory.User{alice}, pageSize: 50}
		mailer := &fakeMailer{}

		scheduler := notify.NewScheduler(debtors, users, mailer, notify.WithPageSize(50))

		scheduler.RunNow(t.Context())

		assert.Equal(t, []string{"alice@example.com"}, mailer.sentTo())
	})

	t.Run("failing_page_drops_only_its_debtors", func(t *testing.T) {
		debtors := &fakeDebtors{notifications: debtorsFor(aliceID, bobID)}
		users := &fakeDirectory{
			users:     []directory.User{alice, bob},
			pageSize:  1,
			failPages: map[int]bool{1: true},
		}
		mailer := &fakeMailer{}

		scheduler := notify.NewScheduler(debtors, users, mailer, notify.WithPageSize(1))

		scheduler.RunNow(t.Context())

		assert.Equal(t, []string{"alice@example.com"}, mailer.sentTo())
	})

	t.Run("failing_user_count_aborts_the_whole_batch", func(t *testing.T) {
		debtors := &fakeDebtors{notifications: debtorsFor(aliceID, bobID)}
		users := &fakeDirectory{countErr: errors.New("directory down"), pageSize: 50}
		mailer := &fakeMailer{}

		scheduler := notify.NewScheduler(debtors, users, mailer, notify.WithPageSize(50))

		scheduler.RunNow(t.Context())

		assert.Empty(t, mailer.sent, "no partial sends on unknown directory size")
		assert.Zero(t, users.listCalls)
	})
}

func Test_Scheduler_OneFailedSendDoesNotStopTheRest(t *testing.T) {
	debtors := &fakeDebtors{notifications: debtorsFor(aliceID, bobID)}
	users := &fakeDirectory{users: []directory.User{alice, bob}, pageSize: 50}
	mailer := &fakeMailer{failFor: map[string]bool{"alice@example.com": true}}

	scheduler := notify.NewScheduler(debtors, users, mailer, notify.WithPageSize(50))

	scheduler.RunNow(t.Context())

	assert.Equal(t, []string{"bob@example.com"}, mailer.sentTo())
}

func Test_Scheduler_StartRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	debtors := &fakeDebtors{notifications: debtorsFor(aliceID)}
	users := &fakeDirectory{users: []directory.User{alice}, pageSize: 50}
	mailer := &fakeMailer{}

	scheduler := notify.NewScheduler(debtors, users, mailer,
		notify.WithPageSize(50),
		notify.WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan struct{})
	go func() {
		scheduler.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(mailer.sentTo()) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancellation")
	}
}
