package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"gradewatch/internal/watcher"
)

// Shoutrrr sends through one router covering every configured URL.
type Shoutrrr struct {
	sender *router.ServiceRouter
}

func NewShoutrrr(urls []string, timeout time.Duration) (*Shoutrrr, error) {
	if len(urls) == 0 {
		return nil, errors.New("shoutrrr: no urls")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// Errors from CreateSender may echo the URL, which holds credentials.
		return nil, errors.New("shoutrrr: invalid service url")
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &Shoutrrr{sender: sender}, nil
}

func (s *Shoutrrr) Name() string { return "shoutrrr" }

// Send ignores ctx; the router enforces its own timeout.
func (s *Shoutrrr) Send(_ context.Context, msg watcher.Message) error {
	params := stypes.Params{}
	if msg.Title != "" {
		params.SetTitle(msg.Title)
	}
	var errs []error
	for i, err := range s.sender.Send(msg.Body, &params) {
		if err != nil {
			errs = append(errs, fmt.Errorf("url #%d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}
