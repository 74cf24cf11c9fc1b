package imap4

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, line string) *Response {
	t.Helper()
	resp, err := ParseResponseLine([]byte(line))
	if err != nil {
		t.Fatalf("ParseResponseLine(%q): %v", line, err)
	}
	return resp
}

func TestParseTaggedOK(t *testing.T) {
	resp := mustParse(t, "a1 OK LOGIN completed\r\n")
	if resp.Kind != Tagged || resp.Tag != "a1" || resp.Type != TokenOK {
		t.Fatalf("got %+v", resp)
	}
	if resp.Text.Text == nil || *resp.Text.Text != "LOGIN completed" {
		t.Fatalf("got text %+v", resp.Text)
	}
	if resp.Text.HasCode {
		t.Fatalf("expected no code, got %+v", resp.Text)
	}
}

func TestParseContinuation(t *testing.T) {
	resp := mustParse(t, "+ Ready for literal\r\n")
	if resp.Kind != Continuation {
		t.Fatalf("got %+v", resp)
	}
	if resp.Text.Text == nil || *resp.Text.Text != "Ready for literal" {
		t.Fatalf("got %+v", resp.Text)
	}
}

func TestParseExists(t *testing.T) {
	resp := mustParse(t, "* 172 EXISTS\r\n")
	if resp.Kind != Untagged || resp.UntaggedType != TokenEXISTS {
		t.Fatalf("got %+v", resp)
	}
	if resp.Data.(uint64) != 172 {
		t.Fatalf("got data %+v", resp.Data)
	}
}

func TestParseList(t *testing.T) {
	resp := mustParse(t, "* LIST (\\HasNoChildren) \"/\" INBOX\r\n")
	list, ok := resp.Data.(*List)
	if !ok {
		t.Fatalf("got %+v", resp.Data)
	}
	if _, ok := list.Attributes["\\HasNoChildren"]; !ok {
		t.Fatalf("missing attribute, got %+v", list.Attributes)
	}
	if !list.HasDelim || list.Delimiter != '/' {
		t.Fatalf("got delim %+v", list)
	}
	if string(list.Mailbox) != "INBOX" {
		t.Fatalf("got mailbox %q", list.Mailbox)
	}
}

func TestParseFetchUIDAndSize(t *testing.T) {
	resp := mustParse(t, "* 12 FETCH (UID 4827 RFC822.SIZE 44827)\r\n")
	fetch, ok := resp.Data.(*Fetch)
	if !ok {
		t.Fatalf("got %+v", resp.Data)
	}
	if fetch.Msg != 12 {
		t.Fatalf("got msg %d", fetch.Msg)
	}
	if fetch.Items[TokenUID].(uint64) != 4827 {
		t.Fatalf("got UID %+v", fetch.Items[TokenUID])
	}
	if fetch.Items[TokenRFC822SIZE].(uint64) != 44827 {
		t.Fatalf("got RFC822.SIZE %+v", fetch.Items[TokenRFC822SIZE])
	}
}

func TestParseOKWithUIDValidityCode(t *testing.T) {
	resp := mustParse(t, "* OK [UIDVALIDITY 3857529045] UIDs valid\r\n")
	rt, ok := resp.Data.(*ResponseText)
	if !ok {
		t.Fatalf("got %+v", resp.Data)
	}
	if rt.Code != TokenUIDVALIDITY {
		t.Fatalf("got code %+v", rt.Code)
	}
	if rt.CodeData.(uint64) != 3857529045 {
		t.Fatalf("got code data %+v", rt.CodeData)
	}
	if rt.Text == nil || *rt.Text != "UIDs valid" {
		t.Fatalf("got text %+v", rt.Text)
	}
}

func TestParseEmptyESearch(t *testing.T) {
	resp := mustParse(t, "* ESEARCH\r\n")
	es, ok := resp.Data.(*Esearch)
	if !ok {
		t.Fatalf("got %+v", resp.Data)
	}
	if es.Tag != nil || es.UID || len(es.Returned) != 0 {
		t.Fatalf("got %+v", es)
	}
}

func TestParseESearchWithTagAndReturns(t *testing.T) {
	resp := mustParse(t, "* ESEARCH (TAG \"a1\") UID COUNT 5 ALL 1:5,9\r\n")
	es := resp.Data.(*Esearch)
	if es.Tag == nil || *es.Tag != "a1" {
		t.Fatalf("got tag %+v", es.Tag)
	}
	if !es.UID {
		t.Fatalf("expected UID flag")
	}
	if es.Returned[TokenCOUNT].(uint64) != 5 {
		t.Fatalf("got count %+v", es.Returned[TokenCOUNT])
	}
	seq := es.Returned[TokenALL].([]SeqItem)
	if len(seq) != 2 || !seq[0].IsRange || seq[0].From != 1 || seq[0].To != 5 || seq[1].IsRange || seq[1].Single != 9 {
		t.Fatalf("got seq %+v", seq)
	}
}

func TestInboxCaseNormalisation(t *testing.T) {
	for _, name := range []string{"inbox", "Inbox", "INBOX"} {
		line := "* LIST () \"/\" " + name + "\r\n"
		resp := mustParse(t, line)
		list := resp.Data.(*List)
		if string(list.Mailbox) != "INBOX" {
			t.Fatalf("%s: got mailbox %q", name, list.Mailbox)
		}
	}
}

func TestGmailCapabilityCodeWithText(t *testing.T) {
	resp := mustParse(t, "* OK [CAPABILITY IMAP4rev1] Courtesy of Gmail\r\n")
	rt := resp.Data.(*ResponseText)
	if rt.CodeName != "CAPABILITY" {
		t.Fatalf("got code name %q", rt.CodeName)
	}
	data, ok := rt.CodeData.(*string)
	if !ok || data == nil || *data != "IMAP4rev1" {
		t.Fatalf("got code data %+v", rt.CodeData)
	}
}

func TestGmailCapabilityCodeNoTrailingText(t *testing.T) {
	// "[CODE]" with nothing after the closing bracket at all — no SP,
	// no text. Gmail does this.
	resp := mustParse(t, "* OK [CAPABILITY IMAP4rev1]\r\n")
	rt := resp.Data.(*ResponseText)
	if rt.Text != nil {
		t.Fatalf("expected absent text, got %+v", *rt.Text)
	}
}

func TestBodyStructureNestedMultipart(t *testing.T) {
	line := `* 1 FETCH (BODYSTRUCTURE (((("TEXT" "PLAIN" NIL NIL NIL "7BIT" 10 1 NIL NIL NIL NIL)("TEXT" "HTML" NIL NIL NIL "7BIT" 20 2 NIL NIL NIL NIL) "ALTERNATIVE" NIL NIL NIL NIL)("TEXT" "PLAIN" NIL NIL NIL "7BIT" 5 1 NIL NIL NIL NIL) "MIXED" NIL NIL NIL NIL)("TEXT" "PLAIN" NIL NIL NIL "7BIT" 3 1 NIL NIL NIL NIL) "MIXED" NIL NIL NIL NIL))` + "\r\n"
	resp := mustParse(t, line)
	fetch := resp.Data.(*Fetch)
	top, ok := fetch.Items[TokenBODYSTRUCTURE].(*MultipartBody)
	if !ok {
		t.Fatalf("got %T", fetch.Items[TokenBODYSTRUCTURE])
	}
	if top.Subtype != "mixed" || len(top.Parts) != 2 {
		t.Fatalf("got %+v", top)
	}
	inner, ok := top.Parts[0].(*MultipartBody)
	if !ok || inner.Subtype != "mixed" || len(inner.Parts) != 2 {
		t.Fatalf("got %+v", top.Parts[0])
	}
	deepest, ok := inner.Parts[0].(*MultipartBody)
	if !ok || deepest.Subtype != "alternative" || len(deepest.Parts) != 2 {
		t.Fatalf("got %+v", inner.Parts[0])
	}
	leaf, ok := deepest.Parts[0].(*TextBody)
	if !ok || leaf.Subtype != "plain" || leaf.Lines != 1 {
		t.Fatalf("got %+v", deepest.Parts[0])
	}
}

func TestFetchBodySection(t *testing.T) {
	resp := mustParse(t, "* 3 FETCH (BODY[TEXT]<0> {5}\r\nhello UID 9)\r\n")
	fetch := resp.Data.(*Fetch)
	sec, ok := fetch.BodySections["TEXT"]
	if !ok {
		t.Fatalf("missing section, got %+v", fetch.BodySections)
	}
	if sec.Origin == nil || *sec.Origin != 0 {
		t.Fatalf("got origin %+v", sec.Origin)
	}
	if string(sec.Content) != "hello" {
		t.Fatalf("got content %q", sec.Content)
	}
	if fetch.Items[TokenUID].(uint64) != 9 {
		t.Fatalf("got UID %+v", fetch.Items[TokenUID])
	}
}

func TestSearchAndCapability(t *testing.T) {
	resp := mustParse(t, "* SEARCH 1 2 3 5\r\n")
	nums := resp.Data.(map[uint64]struct{})
	for _, n := range []uint64{1, 2, 3, 5} {
		if _, ok := nums[n]; !ok {
			t.Fatalf("missing %d in %+v", n, nums)
		}
	}

	resp = mustParse(t, "* CAPABILITY IMAP4rev1 STARTTLS AUTH=PLAIN\r\n")
	caps := resp.Data.(map[string]struct{})
	for _, c := range []string{"IMAP4rev1", "STARTTLS", "AUTH=PLAIN"} {
		if _, ok := caps[c]; !ok {
			t.Fatalf("missing %q in %+v", c, caps)
		}
	}
}

func TestStatusResponse(t *testing.T) {
	resp := mustParse(t, "* STATUS INBOX (MESSAGES 231 UIDNEXT 44292)\r\n")
	status := resp.Data.(*Status)
	if string(status.Mailbox) != "INBOX" {
		t.Fatalf("got mailbox %q", status.Mailbox)
	}
	if status.Items[TokenMESSAGES] != 231 || status.Items[TokenUIDNEXT] != 44292 {
		t.Fatalf("got %+v", status.Items)
	}
}

func TestNumberOverflow(t *testing.T) {
	_, err := ParseResponseLine([]byte("* 18446744073709551615 EXISTS\r\n"))
	if err != nil {
		t.Fatalf("expected max uint64 to parse, got %v", err)
	}
	_, err = ParseResponseLine([]byte("* 18446744073709551616 EXISTS\r\n"))
	if err == nil {
		t.Fatalf("expected overflow to be a parse error")
	}
}

func TestEmptyInputIsError(t *testing.T) {
	if _, err := ParseResponseLine(nil); err == nil {
		t.Fatalf("expected error on empty input")
	}
	if _, err := ParseString(nil); err == nil {
		t.Fatalf("expected error on empty input")
	}
	if _, err := ParseAString(nil); err == nil {
		t.Fatalf("expected error on empty input")
	}
}

func TestTrailingBytesIsError(t *testing.T) {
	if _, err := ParseResponseLine([]byte("a1 OK done\r\nextra")); err == nil {
		t.Fatalf("expected trailing-bytes error")
	}
}

func TestParseBareStringAndAString(t *testing.T) {
	s, err := ParseString([]byte(`"hello \"world\""`))
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	if string(s) != `hello "world"` {
		t.Fatalf("got %q", s)
	}

	a, err := ParseAString([]byte("INBOX.Sent"))
	if err != nil {
		t.Fatalf("ParseAString: %v", err)
	}
	if string(a) != "INBOX.Sent" {
		t.Fatalf("got %q", a)
	}

	// astring permits "]" unlike atom.
	a2, err := ParseAString([]byte("foo]bar"))
	if err != nil {
		t.Fatalf("ParseAString with ]: %v", err)
	}
	if string(a2) != "foo]bar" {
		t.Fatalf("got %q", a2)
	}
}

func TestParseLiteralAsString(t *testing.T) {
	s, err := ParseString([]byte("{5}\r\nhello"))
	if err != nil {
		t.Fatalf("ParseString literal: %v", err)
	}
	if string(s) != "hello" {
		t.Fatalf("got %q", s)
	}
}

func TestInternalDateFetch(t *testing.T) {
	resp := mustParse(t, `* 1 FETCH (INTERNALDATE "17-Jul-1996 02:44:25 -0800")`+"\r\n")
	fetch := resp.Data.(*Fetch)
	tm, ok := fetch.Items[TokenINTERNALDATE].(time.Time)
	if !ok {
		t.Fatalf("got %T", fetch.Items[TokenINTERNALDATE])
	}
	if tm.Year() != 1996 || tm.Month() != time.July || tm.Day() != 17 {
		t.Fatalf("got %v", tm)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	line := `* 1 FETCH (ENVELOPE ("Mon, 7 Feb 1994 21:52:25 -0800" "IMAP4rev1 WG mtg summary" (("Terry Gray" NIL "gray" "cac.washington.edu")) (("Terry Gray" NIL "gray" "cac.washington.edu")) (("Terry Gray" NIL "gray" "cac.washington.edu")) ((NIL NIL "imap" "cac.washington.edu")) NIL NIL NIL "<B27397-0100000@cac.washington.edu>"))` + "\r\n"
	resp := mustParse(t, line)
	fetch := resp.Data.(*Fetch)
	env, ok := fetch.Items[TokenENVELOPE].(*Envelope)
	if !ok {
		t.Fatalf("got %T", fetch.Items[TokenENVELOPE])
	}
	if string(env.Subject) != "IMAP4rev1 WG mtg summary" {
		t.Fatalf("got subject %q", env.Subject)
	}
	if len(env.From) != 1 || string(env.From[0].Mailbox) != "gray" {
		t.Fatalf("got from %+v", env.From)
	}
	if string(env.MessageID) != "<B27397-0100000@cac.washington.edu>" {
		t.Fatalf("got message id %q", env.MessageID)
	}
	if !env.HasDate {
		t.Fatalf("expected date to parse")
	}
}
