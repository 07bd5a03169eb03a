package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/absensi/core"
	testutil "github.com/trezcool/absensi/tests"
)

func TestConsoleService(t *testing.T) {
	conf := testutil.Config()
	svc := NewConsoleServiceMock(conf, new(testutil.Logger))
	var out bytes.Buffer
	svc.out = &out

	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: "Wali Kelas", Address: "wali@test.id"}},
		Subject: "Rekap",
		BodyStr: "see attached",
	}
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "rekap.csv", "text/csv"))
	svc.SendMessages(msg, &core.EmailMessage{Subject: "nobody", BodyStr: "dropped"})

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "see attached", sent[0].TextContent)

	s := out.String()
	assert.Contains(t, s, "Subject: [Absensi] Rekap")
	assert.Contains(t, s, `To: "Wali Kelas" <wali@test.id>`)
	assert.Contains(t, s, "multipart/mixed")
	assert.Contains(t, s, "filename=rekap.csv")

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(testutil.Config(), new(testutil.Logger)).(*sendgridService)
	msg := core.EmailMessage{
		To:          []mail.Address{{Address: "a@test.id"}},
		Cc:          []mail.Address{{Address: "b@test.id"}},
		Subject:     "Rekap",
		TextContent: "text",
	}
	require.NoError(t, msg.Attach(strings.NewReader("x"), "x.csv", "text/csv"))

	m := svc.prepare(msg)
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Absensi] Rekap", m.Personalizations[0].Subject)
	assert.Len(t, m.Personalizations[0].To, 1)
	assert.Len(t, m.Personalizations[0].CC, 1)
	require.Len(t, m.Content, 1) // empty html is skipped
	assert.Equal(t, "text/plain", m.Content[0].Type)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "x.csv", m.Attachments[0].Filename)
	assert.Equal(t, "noreply@test.id", m.From.Address)
}
