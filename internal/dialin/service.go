package dialin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/meetavatar/internal/i18n"
)

// Translation keys.
const (
	KeyGenericError       = "info.genericError"
	KeyDialInNotSupported = "info.dialInNotSupported"
	KeyConferenceID       = "info.dialInConferenceID"
	KeyNumber             = "info.dialInNumber"
	KeyTollFree           = "info.dialInTollFree"
)

// Fetcher is the pair of dial-in lookups. Client implements it.
type Fetcher interface {
	ConferenceID(ctx context.Context, room string) (ConferenceID, error)
	Numbers(ctx context.Context, room string) (Numbers, error)
}

// Summary is the dial-in information of one room, ready for display.
type Summary struct {
	Room           string   `json:"room"`
	ShowTitle      bool     `json:"showTitle,omitempty"`
	ConferenceID   string   `json:"conferenceId,omitempty"`
	Numbers        []Number `json:"numbers,omitempty"`
	NumbersEnabled *bool    `json:"numbersEnabled,omitempty"`
	Error          string   `json:"error,omitempty"`
	Display        string   `json:"contents"`

	notSupported string
	labels       labels
}

type labels struct {
	conferenceID string
	number       string
	tollFree     string
}

// Supported reports whether dial-in is available for the room.
func (s Summary) Supported() bool {
	return s.NumbersEnabled == nil || *s.NumbersEnabled
}

// Contents renders the display text: the not-supported notice, the error,
// or the conference ID followed by the numbers.
func (s Summary) Contents() string {
	if !s.Supported() {
		return s.notSupported
	}
	if s.Error != "" {
		return s.Error
	}

	var b strings.Builder
	if s.ConferenceID != "" {
		if s.ShowTitle {
			b.WriteString(s.Room)
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s\n", s.labels.conferenceID, s.ConferenceID)
	}
	for _, n := range s.Numbers {
		fmt.Fprintf(&b, "%s %s %s", s.labels.number, n.CountryCode, n.FormattedNumber)
		if n.TollFree {
			fmt.Fprintf(&b, " (%s)", s.labels.tollFree)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// Service loads summaries.
type Service struct {
	fetcher    Fetcher
	config     ClientConfig
	translator *i18n.Translator
	logger     zerolog.Logger
}

// NewService creates a service. cfg decides which lookups are configured;
// a nil translator uses the base locale.
func NewService(fetcher Fetcher, cfg ClientConfig, translator *i18n.Translator, logger zerolog.Logger) *Service {
	if translator == nil {
		translator = i18n.Default().Translator(i18n.BaseLocale)
	}
	return &Service{
		fetcher:    fetcher,
		config:     cfg,
		translator: translator,
		logger:     logger.With().Str("component", "dialin").Logger(),
	}
}

// WithTranslator returns a copy of s that translates with t.
func (s *Service) WithTranslator(t *i18n.Translator) *Service {
	cp := *s
	cp.translator = t
	return &cp
}

// Load runs both lookups concurrently and returns once both settle. A
// failure of either surfaces as the translated generic error; a missing
// numbers endpoint surfaces as the not-supported notice.
func (s *Service) Load(ctx context.Context, room string, showTitle bool) Summary {
	t := s.translator
	sum := Summary{
		Room:         room,
		ShowTitle:    showTitle,
		notSupported: t.T(KeyDialInNotSupported),
		labels: labels{
			conferenceID: t.T(KeyConferenceID),
			number:       t.T(KeyNumber),
			tollFree:     t.T(KeyTollFree),
		},
	}

	var (
		wg      sync.WaitGroup
		numbers Numbers
		confID  ConferenceID
		numErr  error
		idErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if s.config.NumbersURL == "" {
			numErr = ErrNotConfigured
			return
		}
		numbers, numErr = s.fetcher.Numbers(ctx, room)
	}()
	go func() {
		defer wg.Done()
		if s.config.ConfCodeURL == "" || s.config.MUCHost == "" || room == "" {
			return
		}
		confID, idErr = s.fetcher.ConferenceID(ctx, room)
	}()
	wg.Wait()

	switch {
	case errors.Is(numErr, ErrNotConfigured):
		sum.Error = t.T(KeyDialInNotSupported)
	case numErr != nil || idErr != nil:
		sum.Error = t.T(KeyGenericError)
	}
	if numErr != nil && !errors.Is(numErr, ErrNotConfigured) {
		s.logger.Warn().Err(numErr).Str("room", room).Msg("Dial-in numbers lookup failed")
	}
	if idErr != nil {
		s.logger.Warn().Err(idErr).Str("room", room).Msg("Conference ID lookup failed")
	}

	if numErr == nil {
		enabled := numbers.Enabled
		sum.NumbersEnabled = &enabled
		sum.Numbers = numbers.List
	}
	if idErr == nil && confID.Valid() {
		sum.ConferenceID = confID.ID.String()
	}
	sum.Display = sum.Contents()
	return sum
}
