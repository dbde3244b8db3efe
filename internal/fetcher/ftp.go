package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	anonymousUser     = "anonymous"
	anonymousPassword = "anonymous@"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout time.Duration // dial and command timeout (default 30s)
}

// FTPFetcher retrieves files over FTP. Credentials come from the URL's user
// info; without them the login is anonymous.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates an FTPFetcher, filling in the default timeout.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPFetcher{opts: opts}
}

// ftpTarget is a parsed ftp:// location.
type ftpTarget struct {
	addr     string // host:port
	path     string
	user     string
	password string
}

// parseFTPTarget splits an ftp:// URL into dial address, remote path and
// login. Port 21 is assumed when none is given.
func parseFTPTarget(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.Errorf("ftp: no file path in %s", u.Redacted())
	}

	t := ftpTarget{
		addr:     u.Host,
		path:     u.Path,
		user:     anonymousUser,
		password: anonymousPassword,
	}
	if _, _, err := net.SplitHostPort(t.addr); err != nil {
		t.addr = net.JoinHostPort(u.Hostname(), "21")
	}
	if u.User != nil && u.User.Username() != "" {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// ftpBody streams one RETR and owns the control connection behind it.
type ftpBody struct {
	*ftp.Response
	conn *ftp.ServerConn
}

// Close ends the transfer, then logs out.
func (b *ftpBody) Close() error {
	if err := b.Response.Close(); err != nil {
		_ = b.conn.Quit()
		return eris.Wrap(err, "ftp: close transfer")
	}
	return eris.Wrap(b.conn.Quit(), "ftp: quit")
}

// Download dials the server, logs in and starts retrieving the file. The
// caller must close the returned body to release the connection.
func (f *FTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	t, err := parseFTPTarget(rawURL)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("component", "fetcher.ftp"),
		zap.String("addr", t.addr),
		zap.String("path", t.path),
	)
	log.Debug("connecting")

	conn, err := ftp.Dial(t.addr, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", t.addr)
	}
	if err := conn.Login(t.user, t.password); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: login to %s as %s", t.addr, t.user)
	}

	if size, err := conn.FileSize(t.path); err == nil {
		log.Debug("retrieving", zap.Int64("bytes", size))
	}

	resp, err := conn.Retr(t.path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: retrieve %s", t.path)
	}
	return &ftpBody{Response: resp, conn: conn}, nil
}

// DownloadToFile retrieves the file into path and returns the bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return writeFile(path, body)
}
