package mailbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fallbackNow = time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParsePlainTextMessage(t *testing.T) {
	t.Parallel()

	raw := crlf(`From: "Jane Doe" <jane@example.com>
To: support@example.com
Subject: Printer offline
Date: Tue, 14 Jan 2025 09:15:00 +0200
Message-ID: <abc123@mail.example.com>
Content-Type: text/plain; charset=utf-8

The office printer shows offline since this morning.
`)

	facts, err := ParseMessage(raw, fallbackNow)
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", facts.SenderEmail)
	require.Equal(t, "Jane Doe", facts.SenderName)
	require.Equal(t, "Printer offline", facts.Subject)
	require.Equal(t, "<abc123@mail.example.com>", facts.MessageID)
	require.Equal(t, "The office printer shows offline since this morning.", facts.Body)
	require.True(t, facts.ReceivedAt.Equal(time.Date(2025, 1, 14, 7, 15, 0, 0, time.UTC)))
}

func TestParseMultipartPrefersPlainText(t *testing.T) {
	t.Parallel()

	raw := crlf(`From: bob@example.com
Subject: =?UTF-8?B?UmVjaG51bmcgZmVobHQ=?=
Date: Tue, 14 Jan 2025 09:15:00 +0000
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/html; charset=utf-8

<p>HTML version</p>
--b1
Content-Type: text/plain; charset=iso-8859-1
Content-Transfer-Encoding: quoted-printable

Gr=FC=DFe, plain version
--b1--
`)

	facts, err := ParseMessage(raw, fallbackNow)
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", facts.SenderEmail)
	require.Equal(t, "Rechnung fehlt", facts.Subject)
	require.Equal(t, "Grüße, plain version", facts.Body)
	require.Empty(t, facts.MessageID)
}

func TestParseFallsBackWhenHeadersAreBroken(t *testing.T) {
	t.Parallel()

	raw := crlf(`From: Carol Smith <carol@example.com>
Date: not a date
Content-Type: text/plain; charset=x-unknown-charset

Body with bad bytes ` + "\xff\xfe" + `
`)

	facts, err := ParseMessage(raw, fallbackNow)
	require.NoError(t, err)
	require.Equal(t, "No Subject", facts.Subject)
	require.True(t, facts.ReceivedAt.Equal(fallbackNow))
	require.Contains(t, facts.Body, "Body with bad bytes")
	require.True(t, strings.Contains(facts.Body, "\uFFFD"))
}

func TestParseHTMLOnlyMultipart(t *testing.T) {
	t.Parallel()

	raw := crlf(`From: dave@example.com
Subject: Only html
Content-Type: multipart/mixed; boundary="b2"

--b2
Content-Type: text/html

<b>hello</b>
--b2
Content-Type: application/pdf
Content-Disposition: attachment; filename="a.pdf"

%PDF
--b2--
`)

	facts, err := ParseMessage(raw, fallbackNow)
	require.NoError(t, err)
	require.Equal(t, "<b>hello</b>", facts.Body)
}

func TestParseRejectsMissingSender(t *testing.T) {
	t.Parallel()

	_, err := ParseMessage(crlf("Subject: anonymous\n\nhello\n"), fallbackNow)
	require.ErrorIs(t, err, ErrNoSender)
}

func TestLooseAddress(t *testing.T) {
	t.Parallel()

	addr, name := looseAddress(`"Eve" <eve@example.com>`)
	require.Equal(t, "eve@example.com", addr)
	require.Equal(t, "Eve", name)

	addr, _ = looseAddress("eve@example.com")
	require.Equal(t, "eve@example.com", addr)

	addr, _ = looseAddress("nobody")
	require.Empty(t, addr)
}
