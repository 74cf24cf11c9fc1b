// Package imap4 implements the core of an IMAP4rev1 server-response
// parsing engine: a line scanner that reassembles complete response
// lines (including binary literals) from a growing byte stream, and a
// recursive-descent parser that turns each line into a typed response
// value per RFC 3501 plus common extensions (ESEARCH, CONDSTORE MODSEQ,
// X-GM-EXT1, ENABLE).
//
// The engine performs no I/O and holds no state beyond a single
// instance's scan buffer; it is pure by design so that callers (see
// internal/sync/imap) can drive it over any transport.
package imap4

import "strings"

// Token is a small integer standing in for a keyword drawn from the
// closed IMAP vocabulary recognised by this engine. It is used as a
// switch-dispatch key and as a map key in parsed results.
type Token int

const (
	TokenUnknown Token = iota

	// response-cond-state
	TokenOK
	TokenNO
	TokenBAD
	TokenPREAUTH
	TokenBYE

	// capabilities
	TokenCAPABILITY
	TokenENABLED

	// mailbox-data
	TokenFLAGS
	TokenLIST
	TokenLSUB
	TokenSEARCH
	TokenESEARCH
	TokenSTATUS

	// message-data
	TokenEXISTS
	TokenEXPUNGE
	TokenRECENT
	TokenFETCH

	// FETCH items
	TokenBODY
	TokenBODYSTRUCTURE
	TokenENVELOPE
	TokenINTERNALDATE
	TokenMODSEQ
	TokenRFC822
	TokenRFC822HEADER
	TokenRFC822TEXT
	TokenRFC822SIZE
	TokenUID
	TokenXGMMSGID

	// ESEARCH returns
	TokenMIN
	TokenMAX
	TokenALL
	TokenCOUNT

	// STATUS items
	TokenMESSAGES
	TokenUIDNEXT
	TokenUIDVALIDITY
	TokenUNSEEN

	// resp-text codes
	TokenALERT
	TokenPARSE
	TokenREADONLY
	TokenREADWRITE
	TokenTRYCREATE
	TokenHIGHESTMODSEQ

	// TokenBODYSECTIONS is a synthetic token that never appears on the
	// wire. It is reserved for callers that want a Token-keyed
	// placeholder; the parser itself exposes BODY[section] results via
	// the dedicated Fetch.BodySections field (see DESIGN.md).
	TokenBODYSECTIONS
)

var tokenNames = map[Token]string{
	TokenOK:            "OK",
	TokenNO:            "NO",
	TokenBAD:           "BAD",
	TokenPREAUTH:       "PREAUTH",
	TokenBYE:           "BYE",
	TokenCAPABILITY:    "CAPABILITY",
	TokenENABLED:       "ENABLED",
	TokenFLAGS:         "FLAGS",
	TokenLIST:          "LIST",
	TokenLSUB:          "LSUB",
	TokenSEARCH:        "SEARCH",
	TokenESEARCH:       "ESEARCH",
	TokenSTATUS:        "STATUS",
	TokenEXISTS:        "EXISTS",
	TokenEXPUNGE:       "EXPUNGE",
	TokenRECENT:        "RECENT",
	TokenFETCH:         "FETCH",
	TokenBODY:          "BODY",
	TokenBODYSTRUCTURE: "BODYSTRUCTURE",
	TokenENVELOPE:      "ENVELOPE",
	TokenINTERNALDATE:  "INTERNALDATE",
	TokenMODSEQ:        "MODSEQ",
	TokenRFC822:        "RFC822",
	TokenRFC822HEADER:  "RFC822.HEADER",
	TokenRFC822TEXT:    "RFC822.TEXT",
	TokenRFC822SIZE:    "RFC822.SIZE",
	TokenUID:           "UID",
	TokenXGMMSGID:      "X-GM-MSGID",
	TokenMIN:           "MIN",
	TokenMAX:           "MAX",
	TokenALL:           "ALL",
	TokenCOUNT:         "COUNT",
	TokenMESSAGES:      "MESSAGES",
	TokenUIDNEXT:       "UIDNEXT",
	TokenUIDVALIDITY:   "UIDVALIDITY",
	TokenUNSEEN:        "UNSEEN",
	TokenALERT:         "ALERT",
	TokenPARSE:         "PARSE",
	TokenREADONLY:      "READ-ONLY",
	TokenREADWRITE:     "READ-WRITE",
	TokenTRYCREATE:     "TRYCREATE",
	TokenHIGHESTMODSEQ: "HIGHESTMODSEQ",
	TokenBODYSECTIONS:  "BODYSECTIONS",
}

// String rehydrates a Token to its textual keyword, or "" for
// TokenUnknown and unrecognised values.
func (t Token) String() string {
	return tokenNames[t]
}

var tokenTable map[string]Token

func init() {
	tokenTable = make(map[string]Token, len(tokenNames))
	for tok, name := range tokenNames {
		if tok == TokenBODYSECTIONS {
			// Synthetic: never matched against wire input.
			continue
		}
		tokenTable[name] = tok
	}
}

// lookupToken maps a keyword byte slice to its Token. It returns
// TokenUnknown if the slice is not a recognised keyword. The comparison
// is ASCII case-insensitive, matching IMAP keyword conventions.
func lookupToken(b []byte) Token {
	// Fast path: already upper-case (the common case for server output).
	if tok, ok := tokenTable[string(b)]; ok {
		return tok
	}
	upper := strings.ToUpper(string(b))
	if tok, ok := tokenTable[upper]; ok {
		return tok
	}
	return TokenUnknown
}
