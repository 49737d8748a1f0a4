package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/semmidev/snapkeep/internal/config"
	"github.com/semmidev/snapkeep/internal/domain"

	. "github.com/smartystreets/goconvey/convey"
)

type recordingNotifier struct {
	events []domain.Event
	err    error
}

func (r *recordingNotifier) Notify(ctx context.Context, event domain.Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMulti(t *testing.T) {
	Convey("Given a fan-out notifier", t, func() {
		ok := &recordingNotifier{}
		broken := &recordingNotifier{err: errors.New("smtp down")}
		m := Multi{broken, ok}
		event := domain.Event{ScheduleName: "nightly", BackupID: "b1", Outcome: domain.StatusFailed}

		Convey("Every notifier should receive the event even when one fails", func() {
			err := m.Notify(context.Background(), event)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "smtp down")
			So(len(ok.events), ShouldEqual, 1)
			So(len(broken.events), ShouldEqual, 1)
		})

		Convey("An empty fan-out should succeed", func() {
			So(Multi{}.Notify(context.Background(), event), ShouldBeNil)
		})
	})
}

func TestEmail(t *testing.T) {
	Convey("Given an email notifier", t, func() {
		var (
			gotAddr string
			gotTo   []string
			gotMsg  string
		)
		e := NewEmail(&config.SMTPConfig{Host: "mail.example.com", Port: 587, From: "snapkeep@example.com"})
		e.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
		e.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotMsg = addr, to, string(msg)
			return nil
		}

		Convey("It should send a plain-text message to the schedule recipients", func() {
			err := e.Notify(context.Background(), domain.Event{
				ScheduleName: "nightly",
				BackupID:     "b1",
				Outcome:      domain.StatusPartial,
				Error:        "orders: cursor timeout",
				Emails:       []string{"ops@example.com", "dba@example.com"},
			})
			So(err, ShouldBeNil)
			So(gotAddr, ShouldEqual, "mail.example.com:587")
			So(gotTo, ShouldResemble, []string{"ops@example.com", "dba@example.com"})
			So(gotMsg, ShouldContainSubstring, "Subject: [snapkeep] nightly: partial\r\n")
			So(gotMsg, ShouldContainSubstring, "Error: orders: cursor timeout\r\n")
		})

		Convey("It should do nothing without recipients", func() {
			err := e.Notify(context.Background(), domain.Event{Outcome: domain.StatusSuccess})
			So(err, ShouldBeNil)
			So(gotAddr, ShouldBeEmpty)
		})

		Convey("It should wrap transport errors", func() {
			e.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
			err := e.Notify(context.Background(), domain.Event{Emails: []string{"ops@example.com"}})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to send email notification")
		})
	})
}

func TestTelegram(t *testing.T) {
	Convey("Given a Telegram notifier backed by a fake Bot API", t, func() {
		var (
			mu   sync.Mutex
			sent []string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch {
			case strings.HasSuffix(r.URL.Path, "/getMe"):
				fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"snapkeep","username":"snapkeep_bot"}}`)
			case strings.HasSuffix(r.URL.Path, "/sendMessage"):
				_ = r.ParseForm()
				mu.Lock()
				sent = append(sent, r.Form.Get("chat_id")+"|"+r.Form.Get("text"))
				mu.Unlock()
				fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
			default:
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
			}
		}))
		defer srv.Close()

		tg, err := newTelegram(&config.TelegramConfig{BotToken: "token", ChatID: "42"}, srv.URL+"/bot%s/%s")
		So(err, ShouldBeNil)

		Convey("It should send one message to the configured chat", func() {
			err := tg.Notify(context.Background(), domain.Event{
				ScheduleName: "nightly",
				BackupID:     "b1",
				Outcome:      domain.StatusSuccess,
			})
			So(err, ShouldBeNil)

			mu.Lock()
			defer mu.Unlock()
			So(len(sent), ShouldEqual, 1)
			So(sent[0], ShouldStartWith, "42|")
			So(sent[0], ShouldContainSubstring, "nightly: success")
		})

		Convey("An invalid chat id should be rejected", func() {
			_, err := newTelegram(&config.TelegramConfig{BotToken: "token", ChatID: "ops"}, srv.URL+"/bot%s/%s")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "invalid telegram chat id")
		})
	})
}
