package imap4

// parseBody parses the recursive "body" production: "(" followed by
// either a single-part or multipart body, then ")".
func (p *parser) parseBody() (Body, error) {
	if err := p.expectc('('); err != nil {
		return nil, err
	}
	var body Body
	var err error
	if b, ok := p.peek(); ok && b == '(' {
		body, err = p.parseBodyTypeMpart()
	} else {
		body, err = p.parseBodyType1part()
	}
	if err != nil {
		return nil, err
	}
	if err := p.expectc(')'); err != nil {
		return nil, err
	}
	return body, nil
}

// parseBodyTypeMpart parses a multipart body: one or more nested
// "body" values, then SP media subtype, then optional extensions.
func (p *parser) parseBodyTypeMpart() (Body, error) {
	var parts []Body
	for {
		b, ok := p.peek()
		if !ok || b != '(' {
			break
		}
		part, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	if err := p.expectc(' '); err != nil {
		return nil, err
	}
	subtype, err := p.parseStringASCIILower()
	if err != nil {
		return nil, err
	}

	mb := &MultipartBody{Type: "multipart", Subtype: subtype, Parts: parts}
	if b, ok := p.peek(); ok && b == ' ' {
		p.pos++
		if err := p.parseBodyExtMpart(mb); err != nil {
			return nil, err
		}
	}
	if mb.Params == nil {
		mb.Params = map[string]string{}
	}
	if mb.Extensions == nil {
		mb.Extensions = []any{}
	}
	return mb, nil
}

// parseBodyType1part parses a single-part body, dispatching on media
// type/subtype to the three concrete shapes: text, message/rfc822, or
// basic.
func (p *parser) parseBodyType1part() (Body, error) {
	mediaType, err := p.parseStringASCIILower()
	if err != nil {
		return nil, err
	}
	if err := p.expectc(' '); err != nil {
		return nil, err
	}
	mediaSubtype, err := p.parseStringASCIILower()
	if err != nil {
		return nil, err
	}
	if err := p.expectc(' '); err != nil {
		return nil, err
	}

	base, err := p.parseBodyFields(mediaType, mediaSubtype)
	if err != nil {
		return nil, err
	}

	var body Body
	var ext *ExtTail

	switch {
	case mediaType == "text":
		if err := p.expectc(' '); err != nil {
			return nil, err
		}
		lines, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		tb := &TextBody{BodyBase: base, Lines: lines}
		body, ext = tb, &tb.ExtTail
	case mediaType == "message" && mediaSubtype == "rfc822":
		if err := p.expectc(' '); err != nil {
			return nil, err
		}
		env, err := p.parseEnvelope()
		if err != nil {
			return nil, err
		}
		if err := p.expectc(' '); err != nil {
			return nil, err
		}
		nested, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		if err := p.expectc(' '); err != nil {
			return nil, err
		}
		lines, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		mb := &MessageBody{BodyBase: base, Envelope: *env, Body: nested, Lines: lines}
		body, ext = mb, &mb.ExtTail
	default:
		bb := &BasicBody{BodyBase: base}
		body, ext = bb, &bb.ExtTail
	}

	if b, ok := p.peek(); ok && b == ' ' {
		p.pos++
		if err := p.parseBodyExt1part(ext); err != nil {
			return nil, err
		}
	}
	if ext.Extensions == nil {
		ext.Extensions = []any{}
	}
	return body, nil
}

// parseBodyFields parses the fields shared by every single-part body:
// params, id, description, encoding, size.
func (p *parser) parseBodyFields(mediaType, mediaSubtype string) (BodyBase, error) {
	base := BodyBase{Type: mediaType, Subtype: mediaSubtype}

	params, err := p.parseBodyFldParam()
	if err != nil {
		return base, err
	}
	base.Params = params
	if err := p.expectc(' '); err != nil {
		return base, err
	}

	id, err := p.parseNStringASCII()
	if err != nil {
		return base, err
	}
	base.ID = id
	if err := p.expectc(' '); err != nil {
		return base, err
	}

	desc, err := p.parseNStringASCII()
	if err != nil {
		return base, err
	}
	base.Description = desc
	if err := p.expectc(' '); err != nil {
		return base, err
	}

	enc, err := p.parseStringASCIILower()
	if err != nil {
		return base, err
	}
	base.Encoding = enc
	if err := p.expectc(' '); err != nil {
		return base, err
	}

	size, err := p.parseNumber()
	if err != nil {
		return base, err
	}
	base.Size = size
	return base, nil
}

// parseBodyFldParam parses "body-fld-param": "(" string SP string
// *(SP string SP string) ")" or NIL, into a lower-cased-key map.
func (p *parser) parseBodyFldParam() (map[string]string, error) {
	params := map[string]string{}
	if b, ok := p.peek(); ok && b == '(' {
		p.pos++
		for {
			key, err := p.parseStringASCIILower()
			if err != nil {
				return nil, err
			}
			if err := p.expectc(' '); err != nil {
				return nil, err
			}
			val, err := p.parseString()
			if err != nil {
				return nil, err
			}
			params[key] = string(val)
			if b, ok := p.peek(); ok && b == ' ' {
				p.pos++
				continue
			}
			break
		}
		if err := p.expectc(')'); err != nil {
			return nil, err
		}
		return params, nil
	}
	if err := p.expects("NIL"); err != nil {
		return nil, err
	}
	return params, nil
}

// parseBodyFldDsp parses "body-fld-dsp": "(" string SP body-fld-param
// ")" or NIL.
func (p *parser) parseBodyFldDsp() (*Disposition, error) {
	if b, ok := p.peek(); !ok || b != '(' {
		if err := p.expects("NIL"); err != nil {
			return nil, err
		}
		return nil, nil
	}
	p.pos++
	typ, err := p.parseStringASCIILower()
	if err != nil {
		return nil, err
	}
	if err := p.expectc(' '); err != nil {
		return nil, err
	}
	params, err := p.parseBodyFldParam()
	if err != nil {
		return nil, err
	}
	if err := p.expectc(')'); err != nil {
		return nil, err
	}
	return &Disposition{Type: typ, Params: params}, nil
}

// parseBodyFldLang parses "body-fld-lang": a single string (singleton
// list) or a parenthesised list of strings, or NIL.
func (p *parser) parseBodyFldLang() ([]string, error) {
	b, ok := p.peek()
	if ok && b == '(' {
		p.pos++
		var langs []string
		for {
			s, err := p.parseString()
			if err != nil {
				return nil, err
			}
			langs = append(langs, string(s))
			if b, ok := p.peek(); ok && b == ' ' {
				p.pos++
				continue
			}
			break
		}
		if err := p.expectc(')'); err != nil {
			return nil, err
		}
		return langs, nil
	}
	if ok && (b == 'N' || b == 'n') {
		save := p.pos
		if err := p.expects("NIL"); err == nil {
			return nil, nil
		}
		p.pos = save
	}
	s, err := p.parseString()
	if err != nil {
		return nil, err
	}
	return []string{string(s)}, nil
}

// parseBodyExt1part parses the optional one-part extension tail:
// md5, disposition, lang, location, (SP body-extension)*. Each field is
// only read if the previous byte was SP; missing trailing fields
// default to absent.
func (p *parser) parseBodyExt1part(ext *ExtTail) error {
	md5, err := p.parseNStringASCII()
	if err != nil {
		return err
	}
	ext.MD5 = md5
	if b, ok := p.peek(); !ok || b != ' ' {
		return nil
	}
	p.pos++

	dsp, err := p.parseBodyFldDsp()
	if err != nil {
		return err
	}
	ext.Disposition = dsp
	ext.HasDispo = true
	if b, ok := p.peek(); !ok || b != ' ' {
		return nil
	}
	p.pos++

	lang, err := p.parseBodyFldLang()
	if err != nil {
		return err
	}
	ext.Lang = lang
	ext.HasLang = true
	if b, ok := p.peek(); !ok || b != ' ' {
		return nil
	}
	p.pos++

	loc, err := p.parseNStringASCII()
	if err != nil {
		return err
	}
	ext.Location = loc
	if b, ok := p.peek(); !ok || b != ' ' {
		return nil
	}

	var exts []any
	for {
		b, ok := p.peek()
		if !ok || b != ' ' {
			break
		}
		p.pos++
		v, err := p.parseBodyExtension()
		if err != nil {
			return err
		}
		exts = append(exts, v)
	}
	ext.Extensions = exts
	return nil
}

// parseBodyExtMpart parses the optional multipart extension tail:
// params, disposition, lang, location, (SP body-extension)*.
func (p *parser) parseBodyExtMpart(mb *MultipartBody) error {
	params, err := p.parseBodyFldParam()
	if err != nil {
		return err
	}
	mb.Params = params
	if b, ok := p.peek(); !ok || b != ' ' {
		return nil
	}
	p.pos++

	dsp, err := p.parseBodyFldDsp()
	if err != nil {
		return err
	}
	mb.Disposition = dsp
	mb.HasDispo = true
	if b, ok := p.peek(); !ok || b != ' ' {
		return nil
	}
	p.pos++

	lang, err := p.parseBodyFldLang()
	if err != nil {
		return err
	}
	mb.Lang = lang
	mb.HasLang = true
	if b, ok := p.peek(); !ok || b != ' ' {
		return nil
	}
	p.pos++

	loc, err := p.parseNStringASCII()
	if err != nil {
		return err
	}
	mb.Location = loc
	if b, ok := p.peek(); !ok || b != ' ' {
		return nil
	}

	var exts []any
	for {
		b, ok := p.peek()
		if !ok || b != ' ' {
			break
		}
		p.pos++
		v, err := p.parseBodyExtension()
		if err != nil {
			return err
		}
		exts = append(exts, v)
	}
	mb.Extensions = exts
	return nil
}

// parseBodyExtension parses a single "body-extension": a parenthesised
// list, a number, or an nstring, recursively.
func (p *parser) parseBodyExtension() (any, error) {
	b, ok := p.peek()
	if !ok {
		return nil, p.errorf("expected body-extension, got end of input")
	}
	if b == '(' {
		p.pos++
		var items []any
		if b, ok := p.peek(); !ok || b != ')' {
			for {
				v, err := p.parseBodyExtension()
				if err != nil {
					return nil, err
				}
				items = append(items, v)
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
		return items, nil
	}
	if isDigit(b) {
		return p.parseNumber()
	}
	content, isNil, err := p.parseNString()
	if err != nil {
		return nil, err
	}
	if isNil {
		return nil, nil
	}
	return content, nil
}
