package email

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	contractx "github.com/attachehq/attache/agent/contract"
)

// imapSession is the slice of the IMAP client the read actions need. Tests
// substitute a fake; production uses *client.Client.
type imapSession interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
}

var _ imapSession = (*client.Client)(nil)

var errLogin = errors.New("imap login rejected")

// Gmail system folders as exposed over IMAP.
var gmailFolders = map[string]string{
	"inbox":     "INBOX",
	"sent":      "[Gmail]/Sent Mail",
	"drafts":    "[Gmail]/Drafts",
	"spam":      "[Gmail]/Spam",
	"trash":     "[Gmail]/Trash",
	"starred":   "[Gmail]/Starred",
	"important": "[Gmail]/Important",
	"all":       "[Gmail]/All Mail",
}

func dialIMAP(cfg Config) (imapSession, error) {
	addr := fmt.Sprintf("%s:%d", strings.TrimSpace(cfg.IMAPServer), cfg.IMAPPort)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	if err := c.Login(cfg.Address, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("%w: %v", errLogin, err)
	}
	return c, nil
}

// withSession runs fn inside one IMAP session. The session is acquired and
// released exactly once per call, on every path.
func (a *Adapter) withSession(fn func(imapSession) contractx.Result) contractx.Result {
	session, err := a.dial(a.cfg)
	if err != nil {
		a.log.Debug().Err(err).Msg("imap session unavailable")
		if errors.Is(err, errLogin) {
			return contractx.Fail(contractx.FailAuth, "the mailbox rejected the sign-in; check the address and app password")
		}
		return contractx.Fail(contractx.FailTransport, "could not reach the mailbox")
	}
	defer func() {
		if err := session.Logout(); err != nil {
			a.log.Debug().Err(err).Msg("imap logout failed")
		}
	}()

	return fn(session)
}

func (a *Adapter) unreadCount() contractx.Result {
	return a.withSession(func(s imapSession) contractx.Result {
		if _, err := s.Select("INBOX", true); err != nil {
			a.log.Debug().Err(err).Msg("select inbox failed")
			return contractx.Fail(contractx.FailTransport, "could not open the inbox")
		}

		criteria := imap.NewSearchCriteria()
		criteria.WithoutFlags = []string{imap.SeenFlag}
		ids, err := s.Search(criteria)
		if err != nil {
			a.log.Debug().Err(err).Msg("unseen search failed")
			return contractx.Fail(contractx.FailTransport, "could not search the inbox")
		}
		return contractx.Success(map[string]any{"count": len(ids)})
	})
}

func (a *Adapter) recentEmails(params contractx.ParameterSet) contractx.Result {
	count := clampCount(params.Int("count", 5))
	folder := params.StringOr("folder", "inbox")
	// Known names map to Gmail system folders; anything else is taken as a
	// literal mailbox name so custom labels keep working.
	mailbox, ok := gmailFolders[strings.ToLower(folder)]
	if !ok {
		mailbox = folder
	}

	return a.withSession(func(s imapSession) contractx.Result {
		mbox, err := s.Select(mailbox, true)
		if err != nil {
			a.log.Debug().Err(err).Str("folder", folder).Msg("select folder failed")
			return contractx.Fail(contractx.FailTransport, "could not open the %s folder", folder)
		}
		if mbox.Messages == 0 {
			return contractx.Success(map[string]any{"emails": []map[string]any{}, "count": 0, "folder": folder})
		}

		from := uint32(1)
		if mbox.Messages > uint32(count) {
			from = mbox.Messages - uint32(count) + 1
		}
		seqset := new(imap.SeqSet)
		seqset.AddRange(from, mbox.Messages)

		rows, err := fetchEnvelopes(s, seqset)
		if err != nil {
			a.log.Debug().Err(err).Str("folder", folder).Msg("fetch envelopes failed")
			return contractx.Fail(contractx.FailTransport, "could not fetch messages from the %s folder", folder)
		}
		reverseRows(rows)
		return contractx.Success(map[string]any{"emails": rows, "count": len(rows), "folder": folder})
	})
}

func (a *Adapter) searchEmails(params contractx.ParameterSet) contractx.Result {
	query := params.String("query")
	count := clampCount(params.Int("count", 10))

	return a.withSession(func(s imapSession) contractx.Result {
		if _, err := s.Select("INBOX", true); err != nil {
			a.log.Debug().Err(err).Msg("select inbox failed")
			return contractx.Fail(contractx.FailTransport, "could not open the inbox")
		}

		bySubject := imap.NewSearchCriteria()
		bySubject.Header.Add("Subject", query)
		subjectIDs, err := s.Search(bySubject)
		if err != nil {
			return contractx.Fail(contractx.FailTransport, "could not search the inbox")
		}

		byFrom := imap.NewSearchCriteria()
		byFrom.Header.Add("From", query)
		fromIDs, err := s.Search(byFrom)
		if err != nil {
			return contractx.Fail(contractx.FailTransport, "could not search the inbox")
		}

		ids := unionIDs(subjectIDs, fromIDs)
		if len(ids) > count {
			ids = ids[len(ids)-count:] // highest sequence numbers = newest
		}
		if len(ids) == 0 {
			return contractx.Success(map[string]any{"emails": []map[string]any{}, "count": 0, "query": query})
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(ids...)
		rows, err := fetchEnvelopes(s, seqset)
		if err != nil {
			return contractx.Fail(contractx.FailTransport, "could not fetch the matching messages")
		}
		reverseRows(rows)
		return contractx.Success(map[string]any{"emails": rows, "count": len(rows), "query": query})
	})
}

func fetchEnvelopes(s imapSession, seqset *imap.SeqSet) ([]map[string]any, error) {
	messages := make(chan *imap.Message, 32)
	done := make(chan error, 1)
	go func() {
		done <- s.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	rows := make([]map[string]any, 0, 32)
	for msg := range messages {
		rows = append(rows, envelopeRow(msg))
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return rows, nil
}

func envelopeRow(msg *imap.Message) map[string]any {
	row := map[string]any{"from": "", "subject": "", "date": ""}
	env := msg.Envelope
	if env == nil {
		return row
	}
	row["subject"] = env.Subject
	if !env.Date.IsZero() {
		row["date"] = env.Date.Format("2006-01-02 15:04")
	}
	if len(env.From) > 0 {
		row["from"] = formatAddress(env.From[0])
	}
	return row
}

func formatAddress(addr *imap.Address) string {
	if addr == nil {
		return ""
	}
	if name := strings.TrimSpace(addr.PersonalName); name != "" {
		return fmt.Sprintf("%s <%s>", name, addr.Address())
	}
	return addr.Address()
}

func unionIDs(a, b []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(a)+len(b))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		seen[id] = struct{}{}
	}
	out := make([]uint32, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func reverseRows(rows []map[string]any) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

func clampCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > 50 {
		return 50
	}
	return n
}
