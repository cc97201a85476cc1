package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashureev/chatcord/internal/bot"
	"github.com/go-resty/resty/v2"
)

// MaxAttachmentBytes caps downloaded attachments.
const MaxAttachmentBytes = 25 << 20

// ErrAttachmentTooLarge is returned when an attachment exceeds MaxAttachmentBytes.
var ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")

// Fetcher downloads message attachments from the CDN.
type Fetcher struct {
	client *resty.Client
}

var _ bot.AttachmentFetcher = (*Fetcher)(nil)

// NewFetcher builds a fetcher on hc, or on a default client when hc is nil.
func NewFetcher(hc *http.Client, timeout time.Duration) *Fetcher {
	var c *resty.Client
	if hc != nil {
		c = resty.NewWithClient(hc)
	} else {
		c = resty.New()
	}
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	c.SetRetryCount(2).SetRetryWaitTime(250 * time.Millisecond)
	return &Fetcher{client: c}
}

// Fetch returns the attachment body. The caller must close it.
func (f *Fetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	res, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}

	body := res.RawBody()
	if !res.IsSuccess() {
		if body != nil {
			_ = body.Close()
		}
		return nil, fmt.Errorf("fetch attachment: status %d", res.StatusCode())
	}
	if res.RawResponse != nil && res.RawResponse.ContentLength > MaxAttachmentBytes {
		_ = body.Close()
		return nil, fmt.Errorf("fetch attachment: %d bytes: %w", res.RawResponse.ContentLength, ErrAttachmentTooLarge)
	}
	return &limitedBody{r: body, remaining: MaxAttachmentBytes, Closer: body}, nil
}

// limitedBody fails with ErrAttachmentTooLarge once more than the limit is read.
type limitedBody struct {
	io.Closer
	r         io.Reader
	remaining int64
}

func (l *limitedBody) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrAttachmentTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n + int(l.remaining), ErrAttachmentTooLarge
	}
	return n, err
}
