package service

import (
	"context"
	"errors"

	"hwtrack-backend/internal/assert"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/internal/homework"
	"hwtrack-backend/internal/portal"
)

const report_portal_stabilize = "portal.stabilize"

// Conn is an authenticated view of the portal that must be closed after use.
type Conn interface {
	homework.Source
	Close() error
}

// Portal opens authenticated connections.
//
// note: fault injection point
type Portal interface {
	Open(ctx context.Context, creds portal.Credentials) (Conn, error)
}

type browserPortal struct {
	automaton portal.Automaton
	baseURL   string
	api       portal.APIOptions
	tel       telemetry.API
}

// NewPortal logs in through the automaton and talks to the course platform
// from inside the logged in page.
func NewPortal(automaton portal.Automaton, baseURL string, api portal.APIOptions, tel telemetry.API) Portal {
	assert.NotEmptyStr(baseURL)
	assert.NotNil(tel)
	return browserPortal{
		automaton: automaton,
		baseURL:   baseURL,
		api:       api,
		tel:       tel,
	}
}

type browserConn struct {
	portal.Client
	session *portal.Session
}

func (c browserConn) Close() error {
	return c.session.Close()
}

func (p browserPortal) Open(ctx context.Context, creds portal.Credentials) (Conn, error) {
	session, err := p.automaton.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	_, err = session.Tracker.Stabilize(ctx)
	if err != nil {
		if ctx.Err() != nil {
			session.Close()
			return nil, ctx.Err()
		}
		// calls still go out, just without the sessionId header
		if !errors.Is(err, portal.ErrSessionTokenUnavailable) {
			p.tel.ReportBroken(report_portal_stabilize, err)
		} else {
			p.tel.ReportWarning(report_portal_stabilize, err)
		}
	}

	api := portal.NewAPI(session, p.api, p.tel)
	return browserConn{
		Client:  portal.NewClient(api, p.baseURL),
		session: session,
	}, nil
}
