package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/Veraticus/inward-bound/internal/model"
)

// IMAPOptions configures the connection to an IMAP server.
type IMAPOptions struct {
	Host               string
	Username           string
	Password           string
	Folder             string
	Port               int
	UseTLS             bool
	InsecureSkipVerify bool
}

// IMAPSource fetches messages from one IMAP folder. The cursor is the
// highest UID already fetched, so each cycle only sees mail that arrived
// after the previous one.
type IMAPSource struct {
	opts IMAPOptions
}

// NewIMAPSource validates the options and returns a source. Connections
// are opened per fetch, not held between cycles.
func NewIMAPSource(opts IMAPOptions) (*IMAPSource, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		opts.Port = 993
	}
	if opts.Folder == "" {
		opts.Folder = "INBOX"
	}
	return &IMAPSource{opts: opts}, nil
}

// FetchNewMessages returns every message with a UID above the cursor, in
// UID order, along with the cursor to persist once they are processed.
func (s *IMAPSource) FetchNewMessages(ctx context.Context, cursor string) ([]model.Message, string, error) {
	lastUID, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	client, cleanup, err := s.dial(ctx)
	if err != nil {
		return nil, "", err
	}
	defer cleanup()

	if _, err := client.Select(s.opts.Folder, nil).Wait(); err != nil {
		return nil, "", fmt.Errorf("select %s: %w", s.opts.Folder, err)
	}

	var uidSet imapv2.UIDSet
	uidSet.AddRange(imapv2.UID(lastUID+1), 0)

	searchData, err := client.UIDSearch(&imapv2.SearchCriteria{
		UID: []imapv2.UIDSet{uidSet},
	}, nil).Wait()
	if err != nil {
		return nil, "", fmt.Errorf("uid search: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, cursor, nil
	}

	var fetchSet imapv2.UIDSet
	fetchSet.AddNum(uids...)

	bodySection := &imapv2.FetchItemBodySection{}
	buffers, err := client.Fetch(fetchSet, &imapv2.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imapv2.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}

	messages := make([]model.Message, 0, len(buffers))
	next := lastUID
	for _, buf := range buffers {
		if uint32(buf.UID) > next {
			next = uint32(buf.UID)
		}

		raw := buf.FindBodySection(bodySection)
		if len(raw) == 0 {
			slog.Warn("Message has no body section, skipping", "uid", buf.UID)
			continue
		}

		msg, err := ParseMessage(raw)
		if err != nil {
			slog.Warn("Unparseable message, skipping", "uid", buf.UID, "error", err)
			continue
		}
		if msg.ID == "" {
			// Without a Message-Id the UID is the only stable identity.
			msg.ID = fmt.Sprintf("%s/%d", s.opts.Folder, buf.UID)
		}
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = buf.InternalDate
		}
		messages = append(messages, msg)
	}

	return messages, strconv.FormatUint(uint64(next), 10), nil
}

func (s *IMAPSource) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	options := &imapclient.Options{}

	var (
		client *imapclient.Client
		err    error
	)
	if s.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         s.opts.Host,
			InsecureSkipVerify: s.opts.InsecureSkipVerify,
		}
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				slog.Debug("imap logout failed", "error", err)
			}
		}
		_ = client.Close()
	}

	return client, cleanup, nil
}

// parseCursor interprets the stored cursor as the last seen UID. An empty
// cursor means nothing has been fetched yet.
func parseCursor(cursor string) (uint32, error) {
	if cursor == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(cursor, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed mailbox cursor %q: %w", cursor, err)
	}
	return uint32(n), nil
}
