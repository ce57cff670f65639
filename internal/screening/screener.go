// Package screening matches counterparty names against sanctions and
// proscribed-persons lists.
package screening

import (
	"context"
	"errors"

	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

// Match is the best list hit for a name.
type Match struct {
	Matched     bool    `json:"matched"`
	Score       float64 `json:"score"`
	SourceList  string  `json:"source_list"`
	MatchedName string  `json:"matched_name"`
}

// Matcher looks a name up in one list source.
type Matcher interface {
	Match(ctx context.Context, name string) (Match, error)
}

// Screener checks the local list and, when configured, the remote provider.
// A remote outage never fails the lookup; the local result stands.
type Screener struct {
	local  Matcher
	remote Matcher
	logg   *logger.Logger
}

// ScreenerParams wires a Screener. Remote is optional.
type ScreenerParams struct {
	Local  Matcher
	Remote Matcher
	Logger *logger.Logger
}

// NewScreener validates params and returns the combined matcher.
func NewScreener(params ScreenerParams) (*Screener, error) {
	if params.Local == nil {
		return nil, errors.New("local sanctions matcher required")
	}
	return &Screener{local: params.Local, remote: params.Remote, logg: params.Logger}, nil
}

func (s *Screener) Match(ctx context.Context, name string) (Match, error) {
	local, err := s.local.Match(ctx, name)
	if err != nil {
		return Match{}, err
	}
	if local.Matched || s.remote == nil {
		return local, nil
	}

	remote, err := s.remote.Match(ctx, name)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "remote sanctions screening unavailable; using local list")
		}
		return local, nil
	}
	if remote.Matched || remote.Score > local.Score {
		return remote, nil
	}
	return local, nil
}
