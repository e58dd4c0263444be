package pg_listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultChannel = "ledger_change"

// NotificationHandler receives decoded row notifications.
type NotificationHandler interface {
	HandleNotification(table string, data map[string]interface{}) error
}

// ReconnectHandler is implemented by handlers that need to resync after the
// connection dropped, since notifications sent meanwhile are lost.
type ReconnectHandler interface {
	HandleReconnect()
}

type ListenerConfig struct {
	PgConnStr string
	Channel   string
	Interval  time.Duration
	Timeout   time.Duration
}

type DBListener struct {
	config  ListenerConfig
	handler NotificationHandler
}

type NotificationPayload struct {
	Table string                 `json:"table"`
	Data  map[string]interface{} `json:"data"`
}

func NewDBListener(config ListenerConfig, handler NotificationHandler) *DBListener {
	if config.Channel == "" {
		config.Channel = DefaultChannel
	}
	if config.Interval <= 0 {
		config.Interval = 90 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	return &DBListener{
		config:  config,
		handler: handler,
	}
}

// Start listens until ctx is cancelled.
func (d *DBListener) Start(ctx context.Context) error {
	listener := pq.NewListener(d.config.PgConnStr, 10*time.Second, d.config.Timeout, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logrus.WithError(err).Warn("postgres listener event")
		}
	})
	defer listener.Close()

	if err := listener.Listen(d.config.Channel); err != nil {
		return errors.Wrapf(err, "listening on channel %s", d.config.Channel)
	}
	logrus.Infof("listening for postgres notifications on channel '%s'", d.config.Channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case notification := <-listener.Notify:
			d.handleNotification(notification)
		case <-time.After(d.config.Interval):
			go func() {
				if err := listener.Ping(); err != nil {
					logrus.WithError(err).Warn("postgres listener ping failed")
				}
			}()
		}
	}
}

// pq delivers a nil notification after re-establishing the connection.
func (d *DBListener) handleNotification(notification *pq.Notification) {
	if notification == nil {
		if rh, ok := d.handler.(ReconnectHandler); ok {
			rh.HandleReconnect()
		}
		return
	}

	var payload NotificationPayload
	if err := json.Unmarshal([]byte(notification.Extra), &payload); err != nil {
		logrus.WithError(err).Error("error unmarshalling notification payload")
		return
	}

	if err := d.handler.HandleNotification(payload.Table, payload.Data); err != nil {
		logrus.WithError(err).Error("error handling notification")
	}
}
