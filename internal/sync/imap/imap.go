// Package imap implements IMAP email sync.
// Messages are downloaded as .eml files and NEVER deleted from the server.
package imap

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/eslider/mails/internal/imap4"
	"github.com/eslider/mails/internal/model"
)

// SyncState abstracts the sync state storage (implemented by sync.StateDB).
type SyncState interface {
	IsUIDSynced(accountID, folder, uid string) bool
	MarkUIDSynced(accountID, folder, uid string) error
}

// ProgressFunc is called with human-readable progress updates during sync.
type ProgressFunc func(msg string)

// Sync downloads new emails from an IMAP account.
// Returns (newMessages, error). NEVER deletes or marks messages on the server.
func Sync(acct model.EmailAccount, emailDir string, state SyncState) (int, error) {
	return SyncWithContext(context.Background(), acct, emailDir, state, nil)
}

// SyncWithContext downloads new emails with cancellation and progress reporting.
func SyncWithContext(ctx context.Context, acct model.EmailAccount, emailDir string, state SyncState, onProgress ProgressFunc) (int, error) {
	if onProgress == nil {
		onProgress = func(string) {}
	}

	addr := net.JoinHostPort(acct.Host, fmt.Sprintf("%d", acct.Port))
	log.Printf("IMAP: connecting to %s as %s", addr, acct.Email)
	onProgress("connecting to " + acct.Host)

	var conn net.Conn
	var err error
	if acct.SSL {
		conn, err = tls.Dial("tcp", addr, &tls.Config{ServerName: acct.Host})
	} else {
		conn, err = net.DialTimeout("tcp", addr, 30*time.Second)
	}
	if err != nil {
		return 0, fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := newIMAPClient(conn)
	if err != nil {
		return 0, fmt.Errorf("imap init: %w", err)
	}
	defer client.logout()

	if err := client.login(acct.Email, acct.Password); err != nil {
		return 0, fmt.Errorf("imap login: %w", err)
	}
	log.Printf("IMAP: logged in to %s", acct.Host)
	onProgress("logged in, listing folders")

	folders, err := client.listFolders(acct.Folders)
	if err != nil {
		return 0, fmt.Errorf("list folders: %w", err)
	}
	log.Printf("IMAP: %d folders to sync", len(folders))

	totalNew := 0
	for fi, folder := range folders {
		// Check for cancellation between folders.
		select {
		case <-ctx.Done():
			log.Printf("IMAP: sync cancelled for %s after %d folders, %d messages", acct.Email, fi, totalNew)
			return totalNew, ctx.Err()
		default:
		}

		onProgress(fmt.Sprintf("folder %d/%d: %s", fi+1, len(folders), folder))
		n, err := syncFolderWithContext(ctx, client, acct, folder, emailDir, state)
		if err != nil {
			if ctx.Err() != nil {
				return totalNew, ctx.Err()
			}
			log.Printf("WARN: IMAP folder %q: %v", folder, err)
			continue
		}
		totalNew += n
	}

	log.Printf("IMAP: %s downloaded %d new messages", acct.Email, totalNew)
	return totalNew, nil
}

const fetchBatchSize = 50

func syncFolder(client *imapClient, acct model.EmailAccount, folder, emailDir string, state SyncState) (int, error) {
	return syncFolderWithContext(context.Background(), client, acct, folder, emailDir, state)
}

func syncFolderWithContext(ctx context.Context, client *imapClient, acct model.EmailAccount, folder, emailDir string, state SyncState) (int, error) {
	folderPath := imapFolderToPath(folder)
	dir := filepath.Join(emailDir, folderPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	uids, err := client.selectAndSearch(folder)
	if err != nil {
		return 0, err
	}

	// Filter to only new UIDs (not yet synced).
	var newUIDs []int
	for _, uid := range uids {
		if !state.IsUIDSynced(acct.ID, folder, fmt.Sprintf("%d", uid)) {
			newUIDs = append(newUIDs, uid)
		}
	}

	if len(newUIDs) == 0 {
		return 0, nil
	}

	log.Printf("IMAP: folder %q: %d new of %d total", folder, len(newUIDs), len(uids))

	newCount := 0
	// Fetch in batches of fetchBatchSize (50) UIDs.
	for i := 0; i < len(newUIDs); i += fetchBatchSize {
		// Check for cancellation between batches.
		select {
		case <-ctx.Done():
			return newCount, ctx.Err()
		default:
		}
		end := i + fetchBatchSize
		if end > len(newUIDs) {
			end = len(newUIDs)
		}
		batch := newUIDs[i:end]

		messages, err := client.fetchBatch(batch)
		if err != nil {
			log.Printf("WARN: batch fetch in %q: %v", folder, err)
			// Fall back to one-by-one for this batch.
			for _, uid := range batch {
				raw, err := client.fetch(uid)
				if err != nil {
					log.Printf("WARN: fetch UID %d: %v", uid, err)
					continue
				}
				if saveEmail(dir, uid, raw, acct.ID, folder, state) {
					newCount++
				}
			}
			continue
		}

		for uid, raw := range messages {
			if saveEmail(dir, uid, raw, acct.ID, folder, state) {
				newCount++
			}
		}
	}

	return newCount, nil
}

func saveEmail(dir string, uid int, raw []byte, accountID, folder string, state SyncState) bool {
	if len(raw) == 0 {
		return false
	}
	checksum := contentChecksum(raw)
	filename := fmt.Sprintf("%s-%d.eml", checksum, uid)
	path := filepath.Join(dir, filename)

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		log.Printf("WARN: write %s: %v", path, err)
		return false
	}

	setFileMtime(path, raw)
	state.MarkUIDSynced(accountID, folder, fmt.Sprintf("%d", uid))
	return true
}

// contentChecksum returns the first 16 hex chars of SHA-256.
func contentChecksum(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// setFileMtime sets the file's modification time from the email Date header.
// Falls back to the first Received header if Date is missing or unparseable.
func setFileMtime(path string, raw []byte) {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return
	}
	date, _ := msg.Header.Date()
	if date.IsZero() {
		date = parseDateFuzzy(msg.Header.Get("Date"))
	}
	if date.IsZero() {
		date = parseReceivedDate(msg.Header)
	}
	if date.IsZero() {
		return
	}
	os.Chtimes(path, date, date)
}

// parseDateFuzzy tries multiple date layouts for non-standard Date headers.
func parseDateFuzzy(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05",
		"2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05",
		time.RFC822Z,
		time.RFC822,
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseReceivedDate extracts the date from the first Received header.
func parseReceivedDate(h mail.Header) time.Time {
	received := h.Get("Received")
	if received == "" {
		return time.Time{}
	}
	idx := strings.LastIndex(received, ";")
	if idx < 0 {
		return time.Time{}
	}
	dateStr := strings.TrimSpace(received[idx+1:])
	for _, layout := range []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
		time.RFC822Z,
		time.RFC822,
	} {
		if t, err := time.Parse(layout, dateStr); err == nil {
			return t
		}
	}
	return time.Time{}
}

// --- IMAP folder name to filesystem path mapping ---

var imapFolderMap = map[string]string{
	"inbox":                    "inbox",
	"[gmail]/sent mail":        "gmail/sent",
	"[gmail]/sent":             "gmail/sent",
	"[gmail]/gesendet":         "gmail/sent",
	"[google mail]/sent mail":  "gmail/sent",
	"[gmail]/drafts":           "gmail/draft",
	"[gmail]/draft":            "gmail/draft",
	"[gmail]/entwÃ¼rfe":         "gmail/draft",
	"[google mail]/drafts":     "gmail/draft",
	"[gmail]/trash":            "gmail/trash",
	"[gmail]/papierkorb":       "gmail/trash",
	"[google mail]/trash":      "gmail/trash",
	"[gmail]/spam":             "gmail/spam",
	"[google mail]/spam":       "gmail/spam",
	"[gmail]/all mail":         "gmail/allmail",
	"[gmail]/alle nachrichten": "gmail/allmail",
	"[google mail]/all mail":   "gmail/allmail",
	"[gmail]/marked":           "gmail/marked",
	"[gmail]/markiert":         "gmail/marked",
	"[gmail]/important":        "gmail/important",
	"[gmail]/wichtig":          "gmail/important",
}

var reSlugUnsafe = regexp.MustCompile(`[^\w\s\-.]`)
var reSlugSep = regexp.MustCompile(`[.\s_\-]+`)

func slugifyPart(name string) string {
	name = strings.ReplaceAll(name, "[", "")
	name = strings.ReplaceAll(name, "]", "")
	name = strings.TrimSpace(strings.ToLower(name))
	name = reSlugUnsafe.ReplaceAllString(name, "")
	name = reSlugSep.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "other"
	}
	if len(name) > 40 {
		name = name[:40]
	}
	return name
}

func imapFolderToPath(folderName string) string {
	key := strings.TrimSpace(strings.ToLower(folderName))
	if mapped, ok := imapFolderMap[key]; ok {
		return mapped
	}

	parts := strings.Split(strings.ReplaceAll(folderName, "\\", "/"), "/")
	var slugs []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			slugs = append(slugs, slugifyPart(s))
		}
	}
	if len(slugs) > 0 && (slugs[0] == "gmail" || slugs[0] == "google_mail") {
		slugs[0] = "gmail"
	}
	if len(slugs) == 0 {
		return "other"
	}
	return strings.Join(slugs, "/")
}

// --- IMAP client (UID-based, engine-backed) ---
// A lightweight IMAP client for sync-only operations. Uses UID commands
// (stable across sessions) and the imap4 engine for framing and
// response parsing, including literal-bearing FETCH bodies.

type imapClient struct {
	conn    net.Conn
	scanner *imap4.Scanner
	tag     int
}

func newIMAPClient(conn net.Conn) (*imapClient, error) {
	c := &imapClient{conn: conn, scanner: imap4.NewScanner()}
	// Read server greeting.
	if _, err := c.nextResponse(); err != nil {
		return nil, err
	}
	return c, nil
}

// nextResponse reads bytes off the connection until the scanner can
// frame one complete response line (splicing any embedded literal),
// then parses it.
func (c *imapClient) nextResponse() (*imap4.Response, error) {
	for {
		line, err := c.scanner.Get()
		if err == nil {
			if cerr := c.scanner.Consume(len(line)); cerr != nil {
				return nil, cerr
			}
			return imap4.ParseResponseLine(line)
		}
		if !eris.Is(err, imap4.ErrIncompleteLine) && !eris.Is(err, imap4.ErrIncompleteLiteral) {
			return nil, err
		}
		c.conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		tmp := make([]byte, 8192)
		n, rerr := c.conn.Read(tmp)
		if n > 0 {
			c.scanner.Feed(tmp[:n])
		}
		if rerr != nil {
			return nil, rerr
		}
	}
}

// command sends one tagged command and collects the untagged responses
// that precede its tagged completion. A non-OK completion is returned
// as an error.
func (c *imapClient) command(format string, args ...any) ([]*imap4.Response, error) {
	c.tag++
	tag := fmt.Sprintf("A%04d", c.tag)
	cmd := fmt.Sprintf("%s %s\r\n", tag, fmt.Sprintf(format, args...))
	if _, err := c.conn.Write([]byte(cmd)); err != nil {
		return nil, err
	}

	var untagged []*imap4.Response
	for {
		resp, err := c.nextResponse()
		if err != nil {
			return untagged, eris.Wrapf(err, "command %q", strings.TrimSpace(cmd))
		}
		if resp.Kind == imap4.Tagged && resp.Tag == tag {
			if resp.Type != imap4.TokenOK {
				return untagged, fmt.Errorf("IMAP error: %s", respTextString(resp.Text))
			}
			return untagged, nil
		}
		untagged = append(untagged, resp)
	}
}

func respTextString(rt *imap4.ResponseText) string {
	if rt == nil || rt.Text == nil {
		return ""
	}
	return *rt.Text
}

func (c *imapClient) login(user, password string) error {
	_, err := c.command(`LOGIN "%s" "%s"`, user, password)
	return err
}

func (c *imapClient) logout() {
	c.command("LOGOUT")
	c.conn.Close()
}

func (c *imapClient) listFolders(foldersCfg string) ([]string, error) {
	if foldersCfg != "all" {
		return strings.Split(foldersCfg, ","), nil
	}
	responses, err := c.command(`LIST "" "*"`)
	if err != nil {
		return nil, err
	}
	var folders []string
	for _, resp := range responses {
		if resp.UntaggedType != imap4.TokenLIST {
			continue
		}
		list, ok := resp.Data.(*imap4.List)
		if !ok {
			continue
		}
		if _, noSelect := list.Attributes[`\Noselect`]; noSelect {
			continue
		}
		folders = append(folders, string(list.Mailbox))
	}
	return folders, nil
}

// selectAndSearch uses UID SEARCH to get stable UIDs (like Python's IMAPClient).
// Sequence numbers change between sessions; UIDs are persistent.
func (c *imapClient) selectAndSearch(folder string) ([]int, error) {
	if _, err := c.command(`SELECT "%s"`, folder); err != nil {
		return nil, err
	}
	responses, err := c.command("UID SEARCH ALL")
	if err != nil {
		return nil, err
	}
	var uids []int
	for _, resp := range responses {
		if resp.UntaggedType != imap4.TokenSEARCH {
			continue
		}
		nums, ok := resp.Data.(map[uint64]struct{})
		if !ok {
			continue
		}
		for n := range nums {
			uids = append(uids, int(n))
		}
	}
	sort.Ints(uids)
	return uids, nil
}

// fetch retrieves a single email by UID.
func (c *imapClient) fetch(uid int) ([]byte, error) {
	result, err := c.fetchBatch([]int{uid})
	if err != nil {
		return nil, err
	}
	if raw, ok := result[uid]; ok {
		return raw, nil
	}
	return nil, fmt.Errorf("UID %d not in FETCH response", uid)
}

// fetchBatch retrieves multiple emails in one UID FETCH command.
// Returns map[uid]rawBytes. Matches Python's `client.fetch(batch, ["RFC822"])`.
func (c *imapClient) fetchBatch(uids []int) (map[int][]byte, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	parts := make([]string, len(uids))
	for i, uid := range uids {
		parts[i] = strconv.Itoa(uid)
	}
	uidSet := strings.Join(parts, ",")

	responses, err := c.command("UID FETCH %s RFC822", uidSet)
	if err != nil {
		return nil, fmt.Errorf("fetchBatch: %w", err)
	}

	result := make(map[int][]byte)
	for _, resp := range responses {
		if resp.UntaggedType != imap4.TokenFETCH {
			continue
		}
		fetch, ok := resp.Data.(*imap4.Fetch)
		if !ok {
			continue
		}
		uidVal, ok := fetch.Items[imap4.TokenUID].(uint64)
		if !ok {
			continue
		}
		raw, ok := fetch.Items[imap4.TokenRFC822].([]byte)
		if !ok || raw == nil {
			continue
		}
		result[int(uidVal)] = raw
	}
	return result, nil
}
