/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/ledgersync/config"
	"github.com/blnkfinance/ledgersync/internal/metrics"
	"github.com/blnkfinance/ledgersync/internal/request"
)

// ErrorEvent is the webhook event name used for engine failures.
const ErrorEvent = "ledgersync.error"

const sendTimeout = 10 * time.Second

// ErrorPayload is posted to the generic webhook when an error is reported.
type ErrorPayload struct {
	Event   string    `json:"event"`
	Project string    `json:"project"`
	Error   string    `json:"error"`
	Time    time.Time `json:"time"`
}

func slackMessage(project string, err error, at time.Time) map[string]interface{} {
	field := func(label, value string) map[string]interface{} {
		return map[string]interface{}{
			"type":   "section",
			"fields": []map[string]string{{"type": "mrkdwn", "text": fmt.Sprintf("*%s:*\n%s", label, value)}},
		}
	}

	return map[string]interface{}{
		"blocks": []interface{}{
			map[string]interface{}{
				"type": "header",
				"text": map[string]interface{}{
					"type":  "plain_text",
					"text":  fmt.Sprintf("Error From %s 🐞", project),
					"emoji": true,
				},
			},
			field("Error", err.Error()),
			field("Time", at.Format(time.RFC822)),
		},
	}
}

// SlackNotification posts err to the configured Slack webhook.
func SlackNotification(ctx context.Context, systemError error) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return nil
	}

	req, err := request.NewJSONRequest(ctx, http.MethodPost, conf.Notification.Slack.WebhookUrl,
		slackMessage(conf.ProjectName, systemError, time.Now()), nil)
	if err != nil {
		return err
	}

	_, err = request.Call(req, nil)
	return errors.Wrap(err, "slack notification")
}

// WebhookNotification posts the error as an ErrorPayload to the configured webhook.
func WebhookNotification(ctx context.Context, systemError error) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	hook := conf.Notification.Webhook
	if hook.Url == "" {
		return nil
	}

	payload := ErrorPayload{
		Event:   ErrorEvent,
		Project: conf.ProjectName,
		Error:   systemError.Error(),
		Time:    time.Now().UTC(),
	}
	req, err := request.NewJSONRequest(ctx, http.MethodPost, hook.Url, payload, hook.Headers)
	if err != nil {
		return err
	}

	_, err = request.Call(req, nil)
	return errors.Wrap(err, "webhook notification")
}

// NotifyError logs systemError and forwards it to every configured channel.
// Delivery runs in its own goroutine so callers on the snapshot path never block.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		for _, send := range []func(context.Context, error) error{SlackNotification, WebhookNotification} {
			if err := send(ctx, systemError); err != nil {
				metrics.IncNotificationFailure()
				logrus.WithError(err).Warn("failed to deliver error notification")
			}
		}
	}(systemError)
}
