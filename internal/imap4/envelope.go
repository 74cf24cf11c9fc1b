package imap4

import (
	"net/mail"
	"strings"
	"time"
)

// internalDateLayout is the strict IMAP INTERNALDATE format:
// "d-mmm-yyyy HH:MM:SS ±HHMM".
const internalDateLayout = "2-Jan-2006 15:04:05 -0700"

// parseInternalDate parses a quoted INTERNALDATE FETCH item. Unlike the
// ENVELOPE date field, a malformed INTERNALDATE is a fatal parse error.
func (p *parser) parseInternalDate() (time.Time, error) {
	if err := p.expectc('"'); err != nil {
		return time.Time{}, err
	}
	raw := p.parseRun(func(b byte) bool { return b != '"' && b != '\r' && b != '\n' })
	if err := p.expectc('"'); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(internalDateLayout, string(raw))
	if err != nil {
		return time.Time{}, p.errorf("invalid INTERNALDATE %q: %v", raw, err)
	}
	return t, nil
}

// parseEnvelopeDate parses the ENVELOPE date field: an nstring run
// through an RFC-5322 date parser. A malformed date is never fatal to
// the response — it resolves to (zero time, false) using
// net/mail.ParseDate's clean error-return contract.
func (p *parser) parseEnvelopeDate() (time.Time, bool, error) {
	b, isNil, err := p.parseNString()
	if err != nil {
		return time.Time{}, false, err
	}
	if isNil {
		return time.Time{}, false, nil
	}
	t, err := mail.ParseDate(strings.TrimSpace(string(b)))
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// parseEnvelope parses the fixed ten-field ENVELOPE grammar: date,
// subject, from/sender/reply-to/to/cc/bcc address lists, in-reply-to,
// message-id.
func (p *parser) parseEnvelope() (*Envelope, error) {
	if err := p.expectc('('); err != nil {
		return nil, err
	}

	env := &Envelope{}

	date, hasDate, err := p.parseEnvelopeDate()
	if err != nil {
		return nil, err
	}
	env.Date, env.HasDate = date, hasDate
	if err := p.expectc(' '); err != nil {
		return nil, err
	}

	subject, err := p.parseNStringASCIIBytes()
	if err != nil {
		return nil, err
	}
	env.Subject = subject
	if err := p.expectc(' '); err != nil {
		return nil, err
	}

	for _, dst := range []*[]Address{&env.From, &env.Sender, &env.ReplyTo, &env.To, &env.Cc, &env.Bcc} {
		addrs, err := p.parseEnvAddrs()
		if err != nil {
			return nil, err
		}
		*dst = addrs
		if err := p.expectc(' '); err != nil {
			return nil, err
		}
	}

	inReplyTo, err := p.parseNStringASCIIBytes()
	if err != nil {
		return nil, err
	}
	env.InReplyTo = inReplyTo
	if err := p.expectc(' '); err != nil {
		return nil, err
	}

	messageID, err := p.parseNStringASCIIBytes()
	if err != nil {
		return nil, err
	}
	env.MessageID = messageID

	if err := p.expectc(')'); err != nil {
		return nil, err
	}
	return env, nil
}

// parseNStringASCIIBytes parses an nstring, returning nil for NIL.
func (p *parser) parseNStringASCIIBytes() ([]byte, error) {
	b, isNil, err := p.parseNString()
	if err != nil {
		return nil, err
	}
	if isNil {
		return nil, nil
	}
	return b, nil
}

// parseEnvAddrs parses "env-from" and friends: NIL or "(" 1*address ")".
func (p *parser) parseEnvAddrs() ([]Address, error) {
	if b, ok := p.peek(); ok && (b == 'N' || b == 'n') {
		save := p.pos
		if err := p.expects("NIL"); err == nil {
			return nil, nil
		}
		p.pos = save
	}
	if err := p.expectc('('); err != nil {
		return nil, err
	}
	var addrs []Address
	for {
		addr, err := p.parseAddress()
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
		if b, ok := p.peek(); ok && b == '(' {
			continue
		}
		break
	}
	if err := p.expectc(')'); err != nil {
		return nil, err
	}
	return addrs, nil
}

// parseAddress parses one "address": "(" addr-name SP addr-adl SP
// addr-mailbox SP addr-host ")".
func (p *parser) parseAddress() (Address, error) {
	if err := p.expectc('('); err != nil {
		return Address{}, err
	}
	name, err := p.parseNStringASCIIBytes()
	if err != nil {
		return Address{}, err
	}
	if err := p.expectc(' '); err != nil {
		return Address{}, err
	}
	adl, err := p.parseNStringASCIIBytes()
	if err != nil {
		return Address{}, err
	}
	if err := p.expectc(' '); err != nil {
		return Address{}, err
	}
	mailbox, err := p.parseNStringASCIIBytes()
	if err != nil {
		return Address{}, err
	}
	if err := p.expectc(' '); err != nil {
		return Address{}, err
	}
	host, err := p.parseNStringASCIIBytes()
	if err != nil {
		return Address{}, err
	}
	if err := p.expectc(')'); err != nil {
		return Address{}, err
	}
	return Address{Name: name, ADL: adl, Mailbox: mailbox, Host: host}, nil
}
