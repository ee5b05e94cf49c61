package transport

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-labelwatch/core"
)

// HTTPMessenger posts rendered notifications to a chat API endpoint that
// accepts {"channel": <user id>, "text": ...} with a bearer token.
type HTTPMessenger struct {
	caller *RESTCaller
	url    string
	token  string
}

func NewHTTPMessenger(client HTTPDoer, url string, token string) *HTTPMessenger {
	caller := NewRESTCaller(client, "")
	caller.DefaultHeaders = map[string]string{"Accept": "application/json"}
	return &HTTPMessenger{caller: caller, url: strings.TrimSpace(url), token: strings.TrimSpace(token)}
}

type directMessagePayload struct {
	Channel string            `json:"channel"`
	Text    string            `json:"text"`
	Title   string            `json:"title,omitempty"`
	URL     string            `json:"url,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (m *HTTPMessenger) SendDirectMessage(ctx context.Context, userID string, msg core.RenderedMessage) error {
	if m == nil || m.url == "" {
		return transportError("transport: messenger url is not configured", goerrors.CategoryInternal,
			http.StatusInternalServerError, nil)
	}
	res, err := m.caller.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   m.url,
		Token:  m.token,
		Body: directMessagePayload{
			Channel: userID,
			Text:    msg.Text,
			Title:   msg.Title,
			URL:     msg.URL,
			Fields:  msg.Fields,
		},
	})
	if err != nil {
		return err
	}
	// Slack-style APIs report failures as 200 {"ok": false}.
	var ack struct {
		OK    *bool  `json:"ok"`
		Error string `json:"error"`
	}
	if len(res.Body) > 0 && res.Decode(&ack) == nil && ack.OK != nil && !*ack.OK {
		return transportError("transport: messenger rejected message: "+ack.Error, goerrors.CategoryExternal,
			http.StatusBadGateway, map[string]any{"user_id": userID})
	}
	return nil
}

var _ core.DirectMessenger = (*HTTPMessenger)(nil)
