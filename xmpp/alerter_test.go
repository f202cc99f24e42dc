package xmpp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mattn/go-xmpp"

	"github.com/a-bouts/anchor-watch/anchor"
)

func TestFormat(t *testing.T) {
	at := time.Date(2020, 7, 14, 3, 12, 0, 0, time.UTC)
	d := 35.4
	deadline := at.Add(time.Minute)

	cases := []struct {
		n    anchor.Notification
		want string
	}{
		{anchor.Notification{Kind: anchor.NotifyAlarm, Level: anchor.LevelAlarm, Message: "Vessel has drifted beyond alarm radius", Distance: &d, At: at},
			"⚓ 03:12 ALARM: Vessel has drifted beyond alarm radius (35m)"},
		{anchor.Notification{Kind: anchor.NotifyCheckInDue, Deadline: &deadline, At: at},
			"⚓ 03:12 check-in required within 1m0s"},
		{anchor.Notification{Kind: anchor.NotifyClear, At: at},
			"⚓ 03:12 anchor alarm cleared"},
	}
	for _, c := range cases {
		if got := Format(c.n); got != c.want {
			t.Errorf("Format(%s) = %q; want %q", c.n.Kind, got, c.want)
		}
	}
}

func TestNotify(t *testing.T) {
	var sent []string
	a := Alerter{send: func(m string) error {
		sent = append(sent, m)
		return nil
	}}

	ctx := context.Background()
	if err := a.Notify(ctx, anchor.Notification{Kind: anchor.NotifySilence}); err != nil {
		t.Fatal(err)
	}
	if len(sent) != 0 {
		t.Errorf("silence relayed: %v", sent)
	}

	a.Verbose = true
	if err := a.Notify(ctx, anchor.Notification{Kind: anchor.NotifySilence}); err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 {
		t.Errorf("sent %d messages; want 1", len(sent))
	}
}

func TestSendMissingConfig(t *testing.T) {
	x := Xmpp{Config: Config{Jid: "boat@example.org"}}
	if x.Enabled() {
		t.Errorf("enabled without password")
	}
	if err := x.Send("hello"); err != ErrMissingConfig {
		t.Errorf("Send() = %v; want %v", err, ErrMissingConfig)
	}
	if serverName("boat@example.org") != "example.org" {
		t.Errorf("serverName = %s", serverName("boat@example.org"))
	}
}

func TestOptionsVerifyCertificates(t *testing.T) {
	x := Xmpp{Config: Config{Jid: "boat@example.org", Password: "secret", To: "crew@example.org"}}
	o := x.options()
	if o.Host != "example.org" {
		t.Errorf("Host = %s; want example.org", o.Host)
	}
	if o.TLSConfig == nil || o.TLSConfig.InsecureSkipVerify {
		t.Fatalf("certificates not verified by default")
	}
	if o.TLSConfig.ServerName != "example.org" {
		t.Errorf("ServerName = %s; want example.org", o.TLSConfig.ServerName)
	}

	x.Config.Host = "xmpp.example.org:5222"
	x.Config.Insecure = true
	o = x.options()
	if o.Host != "xmpp.example.org:5222" || !o.TLSConfig.InsecureSkipVerify {
		t.Errorf("options() = %s insecure=%t", o.Host, o.TLSConfig.InsecureSkipVerify)
	}
}

func TestConcurrentSendIsSerialised(t *testing.T) {
	t.Setenv("HTTP_PROXY", "")
	t.Setenv("http_proxy", "")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	var active, peak int32
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			go func() {
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				conn.Close()
			}()
		}
	}()

	x := Xmpp{Config: Config{Host: l.Addr().String(), Jid: "boat@example.org", Password: "secret", To: "crew@example.org"}}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := x.Send("hello"); err == nil {
				t.Errorf("Send() succeeded against a closing server")
			}
		}()
	}
	wg.Wait()

	if p := atomic.LoadInt32(&peak); p != 1 {
		t.Errorf("%d connections open at once; want 1", p)
	}
	if xmpp.DefaultConfig.InsecureSkipVerify {
		t.Errorf("package tls config modified")
	}
}
