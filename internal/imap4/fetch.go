package imap4

// parseSequenceSet parses a comma-separated list of number or
// number:number ranges, preserving order of appearance.
func (p *parser) parseSequenceSet() ([]SeqItem, error) {
	var items []SeqItem
	for {
		first, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		if b, ok := p.peek(); ok && b == ':' {
			p.pos++
			second, err := p.parseNumber()
			if err != nil {
				return nil, err
			}
			items = append(items, SeqItem{IsRange: true, From: first, To: second})
		} else {
			items = append(items, SeqItem{Single: first})
		}
		if b, ok := p.peek(); ok && b == ',' {
			p.pos++
			continue
		}
		break
	}
	return items, nil
}

// parseNumberSet parses "(SP number)*" into a set of ints, used for
// SEARCH.
func (p *parser) parseNumberSet() (map[uint64]struct{}, error) {
	set := make(map[uint64]struct{})
	for {
		b, ok := p.peek()
		if !ok || b != ' ' {
			break
		}
		p.pos++
		n, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		set[n] = struct{}{}
	}
	return set, nil
}

// parseEsearchResponse parses an ESEARCH response. A bare "ESEARCH"
// with no SP at all (no correlator, no returns) short-circuits to an
// empty result rather than erroring.
func (p *parser) parseEsearchResponse() (*Esearch, error) {
	es := &Esearch{Returned: make(map[Token]any)}

	b, ok := p.peek()
	if !ok || b != ' ' {
		return es, nil
	}

	// The SP is consumed here only when the "(TAG ...)" correlator follows
	// it; otherwise it is left for the return-item loop below.
	if p.pos+1 < len(p.buf) && p.buf[p.pos+1] == '(' {
		p.pos += 2 // SP "("
		if err := p.expects("TAG "); err != nil {
			return nil, err
		}
		tag, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := p.expectc(')'); err != nil {
			return nil, err
		}
		s := string(tag)
		es.Tag = &s
	}

	for {
		b, ok := p.peek()
		if !ok || b != ' ' {
			break
		}
		p.pos++
		tok, atom, err := p.parseToken()
		if err != nil {
			return nil, err
		}
		switch tok {
		case TokenUID:
			es.UID = true
		case TokenMIN, TokenMAX, TokenCOUNT:
			if err := p.expectc(' '); err != nil {
				return nil, err
			}
			n, err := p.parseNumber()
			if err != nil {
				return nil, err
			}
			es.Returned[tok] = n
		case TokenALL:
			if err := p.expectc(' '); err != nil {
				return nil, err
			}
			seq, err := p.parseSequenceSet()
			if err != nil {
				return nil, err
			}
			es.Returned[tok] = seq
		default:
			return nil, p.errorf("unknown ESEARCH return %q", atom)
		}
	}

	return es, nil
}

// parseMsgAtt parses the parenthesised, SP-separated list of FETCH
// items. The returned Fetch has Msg left zero for the caller to fill in
// (the sequence number precedes "FETCH" on the wire).
func (p *parser) parseMsgAtt() (*Fetch, error) {
	fetch := &Fetch{Items: make(map[Token]any)}

	if err := p.expectc('('); err != nil {
		return nil, err
	}
	for {
		// "[" is an ATOM-CHAR, so the item name is cut at "[" here to let
		// BODY[section] reach its own branch below.
		atom := p.parseRun(func(b byte) bool { return isAtomChar(b) && b != '[' })
		if len(atom) == 0 {
			return nil, p.errorf("empty atom")
		}
		tok := lookupToken(atom)
		var err error

		var attData any
		skipSetItem := false

		switch tok {
		case TokenFLAGS:
			if err := p.expectc(' '); err != nil {
				return nil, err
			}
			attData, err = p.parseFlagList()
		case TokenBODY:
			if b, ok := p.peek(); ok && b == '[' {
				if fetch.BodySections == nil {
					fetch.BodySections = make(map[string]BodySection)
				}
				if err := p.parseBodySection(fetch.BodySections); err != nil {
					return nil, err
				}
				skipSetItem = true
				break
			}
			if err := p.expectc(' '); err != nil {
				return nil, err
			}
			attData, err = p.parseBody()
		case TokenBODYSTRUCTURE:
			if err := p.expectc(' '); err != nil {
				return nil, err
			}
			attData, err = p.parseBody()
		case TokenENVELOPE:
			if err := p.expectc(' '); err != nil {
				return nil, err
			}
			attData, err = p.parseEnvelope()
		case TokenINTERNALDATE:
			if err := p.expectc(' '); err != nil {
				return nil, err
			}
			attData, err = p.parseInternalDate()
		case TokenMODSEQ:
			if err := p.expects(" ("); err != nil {
				return nil, err
			}
			var n uint64
			n, err = p.parseNumber()
			if err == nil {
				err = p.expectc(')')
			}
			attData = n
		case TokenRFC822, TokenRFC822HEADER, TokenRFC822TEXT:
			if err := p.expectc(' '); err != nil {
				return nil, err
			}
			var nstr []byte
			var isNil bool
			nstr, isNil, err = p.parseNString()
			if isNil {
				attData = ([]byte)(nil)
			} else {
				attData = nstr
			}
		case TokenRFC822SIZE, TokenUID, TokenXGMMSGID:
			if err := p.expectc(' '); err != nil {
				return nil, err
			}
			attData, err = p.parseNumber()
		default:
			return nil, p.errorf("unknown FETCH item %q", atom)
		}
		if err != nil {
			return nil, err
		}

		if !skipSetItem {
			fetch.Items[tok] = attData
		}

		if b, ok := p.peek(); ok && b == ' ' {
			p.pos++
			continue
		}
		break
	}
	if err := p.expectc(')'); err != nil {
		return nil, err
	}

	return fetch, nil
}

// parseBodySection parses a BODY[section]<origin> FETCH sub-item. The
// section-spec is treated opaquely: it is whatever bytes appear
// between "[" and "]".
func (p *parser) parseBodySection(into map[string]BodySection) error {
	if err := p.expectc('['); err != nil {
		return err
	}
	section := p.parseRun(isSectionSpecChar)
	if err := p.expectc(']'); err != nil {
		return err
	}

	var sec BodySection
	if b, ok := p.peek(); ok && b == '<' {
		p.pos++
		origin, err := p.parseNumber()
		if err != nil {
			return err
		}
		if err := p.expectc('>'); err != nil {
			return err
		}
		sec.Origin = &origin
	}
	if err := p.expectc(' '); err != nil {
		return err
	}
	content, isNil, err := p.parseNString()
	if err != nil {
		return err
	}
	sec.Content = content
	sec.Absent = isNil
	into[string(section)] = sec
	return nil
}

// parseMailboxList implements "mailbox-list" for LIST/LSUB: "("
// mbx-list-flags ")" SP delimiter SP mailbox.
func (p *parser) parseMailboxList() (*List, error) {
	list := &List{Attributes: make(map[string]struct{})}

	if err := p.expectc('('); err != nil {
		return nil, err
	}
	if b, ok := p.peek(); ok && b != ')' {
		for {
			if err := p.expectc('\\'); err != nil {
				return nil, err
			}
			atom, err := p.parseAtom()
			if err != nil {
				return nil, err
			}
			list.Attributes["\\"+string(atom)] = struct{}{}
			if b, ok := p.peek(); ok && b == ' ' {
				p.pos++
				continue
			}
			break
		}
	}
	if err := p.expectc(')'); err != nil {
		return nil, err
	}
	if err := p.expectc(' '); err != nil {
		return nil, err
	}

	if b, ok := p.peek(); ok && b == '"' {
		delim, err := p.parseQuoted()
		if err != nil {
			return nil, err
		}
		if len(delim) == 1 {
			list.Delimiter = rune(delim[0])
			list.HasDelim = true
		}
	} else {
		if err := p.expects("NIL"); err != nil {
			return nil, err
		}
	}
	if err := p.expectc(' '); err != nil {
		return nil, err
	}

	mailbox, err := p.parseMailbox()
	if err != nil {
		return nil, err
	}
	list.Mailbox = mailbox
	return list, nil
}

// parseStatusResponse parses "mailbox SP (status-att-list)".
func (p *parser) parseStatusResponse() (*Status, error) {
	mailbox, err := p.parseMailbox()
	if err != nil {
		return nil, err
	}
	if err := p.expectc(' '); err != nil {
		return nil, err
	}
	if err := p.expectc('('); err != nil {
		return nil, err
	}

	status := &Status{Mailbox: mailbox, Items: make(map[Token]uint64)}
	if b, ok := p.peek(); ok && b != ')' {
		for {
			tok, atom, err := p.parseToken()
			if err != nil {
				return nil, err
			}
			switch tok {
			case TokenMESSAGES, TokenRECENT, TokenUIDNEXT, TokenUIDVALIDITY, TokenUNSEEN:
			default:
				return nil, p.errorf("unknown STATUS item %q", atom)
			}
			if err := p.expectc(' '); err != nil {
				return nil, err
			}
			n, err := p.parseNumber()
			if err != nil {
				return nil, err
			}
			status.Items[tok] = n
			if b, ok := p.peek(); ok && b == ' ' {
				p.pos++
				continue
			}
			break
		}
	}
	if err := p.expectc(')'); err != nil {
		return nil, err
	}
	return status, nil
}
