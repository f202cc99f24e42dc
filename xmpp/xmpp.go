package xmpp

import (
	"crypto/tls"
	"errors"
	"strings"
	"sync"

	"github.com/mattn/go-xmpp"
	log "github.com/sirupsen/logrus"
)

var ErrMissingConfig = errors.New("missing xmpp config")

type (
	// Config for the crew notifications.
	Config struct {
		Host     string
		Jid      string
		Password string
		To       string
		// Insecure skips certificate verification, for self-signed servers.
		Insecure bool
	}

	Xmpp struct {
		Config Config
	}
)

// sending serialises Send: alerts and status reports go out from different goroutines.
var sending sync.Mutex

func serverName(jid string) string {
	parts := strings.SplitN(jid, "@", 2)
	if len(parts) < 2 {
		return jid
	}
	return parts[1]
}

// Enabled reports whether enough configuration is set to send messages.
func (x Xmpp) Enabled() bool {
	return len(x.Config.Jid) > 0 && len(x.Config.Password) > 0 && len(x.Config.To) > 0
}

func (x Xmpp) Send(message string) error {

	if !x.Enabled() {
		log.Debug("missing xmpp config")

		return ErrMissingConfig
	}

	sending.Lock()
	defer sending.Unlock()

	options := x.options()
	log.WithFields(log.Fields{
		"host":     options.Host,
		"insecure": x.Config.Insecure,
	}).Debug("create xmpp client")
	talk, err := options.NewClient()
	if err != nil {
		return err
	}
	defer talk.Close()

	log.WithField("to", x.Config.To).Debug("send xmpp message")
	_, err = talk.Send(xmpp.Chat{Remote: x.Config.To, Type: "chat", Text: message})

	return err
}

func (x Xmpp) options() xmpp.Options {
	host := x.Config.Host
	if len(host) == 0 {
		host = serverName(x.Config.Jid)
	}

	return xmpp.Options{
		Host:     host,
		User:     x.Config.Jid,
		Password: x.Config.Password,
		NoTLS:    true,
		StartTLS: true,
		TLSConfig: &tls.Config{
			ServerName:         serverName(x.Config.Jid),
			InsecureSkipVerify: x.Config.Insecure,
		},
		Debug:         false,
		Session:       false,
		Status:        "xa",
		StatusMessage: "Anchor watch",
	}
}
