package pipeline

import (
	"context"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"guildgate-backend/internal/events"
	"guildgate-backend/internal/models"
)

const (
	previewTimeout   = 5 * time.Second
	previewBodyCap   = 512 << 10
	previewUserAgent = "guildgate-linkpreview/1.0"
)

var (
	urlRegexp     = regexp.MustCompile(`https?://[^\s<>"]+`)
	titleRegexp   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	ogTitleRegexp = regexp.MustCompile(`(?is)<meta[^>]+property=["']og:title["'][^>]+content=["']([^"']+)["']`)
	ogDescRegexp  = regexp.MustCompile(`(?is)<meta[^>]+property=["']og:description["'][^>]+content=["']([^"']+)["']`)
	ogImageRegexp = regexp.MustCompile(`(?is)<meta[^>]+property=["']og:image["'][^>]+content=["']([^"']+)["']`)
)

// enrichPreview runs detached after a send: find the first URL, fetch its
// metadata with a hard deadline, persist and broadcast. Nothing here may
// affect the already-acknowledged send; failures are logged and abandoned,
// never retried.
func (p *Pipeline) enrichPreview(ctx context.Context, messageID int64, channelID int64, content string) {
	url := urlRegexp.FindString(content)
	if url == "" {
		return
	}

	preview, err := p.fetchPreview(ctx, url)
	if err != nil {
		p.sugar.Debugf("Link preview for message %d abandoned: %v", messageID, err)
		return
	}
	if preview.Title == "" && preview.Description == "" && preview.Image == "" {
		return
	}

	if err := p.store.UpdateMessagePreview(ctx, messageID, preview); err != nil {
		p.sugar.Errorf("Persisting link preview for message %d: %v", messageID, err)
		return
	}

	message, err := p.store.MessageByID(ctx, messageID)
	if err != nil {
		// deleted in the meantime, nothing to broadcast
		p.sugar.Debugf("Message %d vanished before preview broadcast: %v", messageID, err)
		return
	}
	message.Content = p.codec.DecodeForDisplay(message.Content)

	err = p.broadcaster.Broadcast(ctx, events.ChannelRoom(channelID), events.TypeMessageUpdated, events.MessageUpdated{Message: message})
	if err != nil {
		p.sugar.Error(err)
	}
}

func (p *Pipeline) fetchPreview(ctx context.Context, url string) (models.LinkPreview, error) {
	ctx, cancel := context.WithTimeout(ctx, previewTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.LinkPreview{}, err
	}
	request.Header.Set("User-Agent", previewUserAgent)

	response, err := p.previewer.Do(request)
	if err != nil {
		return models.LinkPreview{}, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, previewBodyCap))
	if err != nil {
		return models.LinkPreview{}, err
	}

	return parsePreview(url, string(body)), nil
}

func parsePreview(url string, page string) models.LinkPreview {
	preview := models.LinkPreview{URL: url}

	if m := ogTitleRegexp.FindStringSubmatch(page); m != nil {
		preview.Title = cleanMeta(m[1])
	} else if m := titleRegexp.FindStringSubmatch(page); m != nil {
		preview.Title = cleanMeta(m[1])
	}
	if m := ogDescRegexp.FindStringSubmatch(page); m != nil {
		preview.Description = cleanMeta(m[1])
	}
	if m := ogImageRegexp.FindStringSubmatch(page); m != nil {
		preview.Image = strings.TrimSpace(m[1])
	}

	return preview
}

func cleanMeta(value string) string {
	value = html.UnescapeString(strings.TrimSpace(value))
	if len(value) > 256 {
		value = value[:256]
	}
	return value
}
