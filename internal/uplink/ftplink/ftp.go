// internal/uplink/ftplink/ftp.go
package ftplink

import (
	"errors"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/tamzrod/ct-gateway/internal/config"
)

const dialTimeout = 30 * time.Second

// ftpSession adapts an FTP server connection to the session interface.
type ftpSession struct {
	conn *ftp.ServerConn
}

func dialFTP(cfg config.FTPConfig) (session, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := ftp.Dial(addr, dialOptions(cfg)...)
	if err != nil {
		return nil, err
	}

	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		conn.Quit()
		return nil, err
	}

	return &ftpSession{conn: conn}, nil
}

// dialOptions maps the config onto client options. Transfers are
// always passive with this client; the passive flag additionally
// forces the classic PASV command for servers that reject EPSV,
// which is what the flag means on the devices it came from.
func dialOptions(cfg config.FTPConfig) []ftp.DialOption {
	opts := []ftp.DialOption{ftp.DialWithTimeout(dialTimeout)}
	if cfg.Passive {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}
	return opts
}

func (s *ftpSession) ChangeDir(path string) error { return s.conn.ChangeDir(path) }
func (s *ftpSession) MakeDir(path string) error   { return s.conn.MakeDir(path) }

func (s *ftpSession) Retrieve(name string) (io.ReadCloser, error) {
	resp, err := s.conn.Retr(name)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *ftpSession) Store(name string, r io.Reader) error {
	return s.conn.Stor(name, r)
}

func (s *ftpSession) Quit() error { return s.conn.Quit() }

// isNotFound recognizes the server's file-unavailable reply (550),
// which marks a missing file or directory rather than a failure.
func isNotFound(err error) bool {
	var proto *textproto.Error
	return errors.As(err, &proto) && proto.Code == ftp.StatusFileUnavailable
}
