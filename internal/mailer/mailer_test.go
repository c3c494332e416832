package mailer

import (
	"context"
	"net/smtp"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  string
}

type fakeImages struct {
	paths []string
	err   error
}

func (f *fakeImages) DailyImages(day time.Time) ([]string, error) {
	return f.paths, f.err
}

func newTestMailer(t *testing.T, images ImageLister) (*Mailer, *capturedMail) {
	t.Helper()

	m := New(zap.NewNop(), Config{
		Host:       "smtp.example.com",
		Port:       587,
		Username:   "user",
		Password:   "pass",
		From:       "reports@example.com",
		SenderName: "Stock Report Module",
		Recipients: []string{"ops@example.com", "not-an-address", "lead@example.com"},
	}, "Test Store", "https://teleop.example.com", images)

	captured := &capturedMail{}
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		captured.addr = addr
		captured.from = from
		captured.to = to
		captured.msg = string(msg)
		return nil
	}
	return m, captured
}

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestMailer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC)

	t.Run("Send Attaches Workbook", func(t *testing.T) {
		m, captured := newTestMailer(t, nil)
		workbook := writeFixture(t, "20250609_Test.xlsx", []byte("workbook-bytes"))

		require.NoError(t, m.Send(ctx, now, workbook))

		assert.Equal(t, "smtp.example.com:587", captured.addr)
		assert.Equal(t, "reports@example.com", captured.from)
		assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, captured.to)

		assert.Contains(t, captured.msg, "Subject: Daily Report: 2025-06-10 - Test Store")
		assert.Contains(t, captured.msg, "From: Stock Report Module <reports@example.com>")
		assert.Contains(t, captured.msg, "multipart/mixed")
		assert.Contains(t, captured.msg, `filename="20250609_Test.xlsx"`)
		assert.Contains(t, captured.msg, "https://teleop.example.com")
	})

	t.Run("Send Attaches Daily Images", func(t *testing.T) {
		img := writeFixture(t, "120000_test.jpg", []byte{0xff, 0xd8, 0xff})
		m, captured := newTestMailer(t, &fakeImages{paths: []string{img}})
		workbook := writeFixture(t, "20250609_Test.xlsx", []byte("workbook-bytes"))

		require.NoError(t, m.Send(ctx, now, workbook))
		assert.Contains(t, captured.msg, `filename="120000_test.jpg"`)
		assert.Contains(t, captured.msg, "image/jpeg")
		assert.Contains(t, captured.msg, "attached are 1 images")
	})

	t.Run("Image Listing Failure Sends Without Images", func(t *testing.T) {
		m, captured := newTestMailer(t, &fakeImages{err: assert.AnError})
		workbook := writeFixture(t, "20250609_Test.xlsx", []byte("workbook-bytes"))

		require.NoError(t, m.Send(ctx, now, workbook))
		assert.NotContains(t, captured.msg, "image/jpeg")
	})

	t.Run("Missing Workbook Fails", func(t *testing.T) {
		m, _ := newTestMailer(t, nil)
		err := m.Send(ctx, now, "/nonexistent/workbook.xlsx")
		assert.Error(t, err)
	})

	t.Run("SendTest", func(t *testing.T) {
		m, captured := newTestMailer(t, nil)

		require.NoError(t, m.SendTest(ctx, now))
		assert.Contains(t, captured.msg, "Subject: Test Report from Test Store")
		assert.Contains(t, captured.msg, "This is a test report")
	})

	t.Run("No Valid Recipients", func(t *testing.T) {
		m := New(zap.NewNop(), Config{
			Host:       "smtp.example.com",
			Port:       587,
			From:       "reports@example.com",
			Recipients: []string{"bogus", ""},
		}, "Test Store", "", nil)

		err := m.SendTest(ctx, now)
		assert.ErrorContains(t, err, "no valid recipients")
	})
}

func TestValidRecipients(t *testing.T) {
	got := validRecipients([]string{"a@b.c", "", "nope", "x@y.z"})
	assert.Equal(t, []string{"a@b.c", "x@y.z"}, got)
}
