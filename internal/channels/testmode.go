package channels

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/logger"
)

// TestModeChecker reports the live, operator-toggleable test-mode state
// (spec §6.5 "toggle test mode"), shared across processes so the flag
// flips without a restart.
type TestModeChecker interface {
	TestModeEnabled(ctx context.Context, def bool) (bool, error)
}

// TestModeDriver wraps a Driver and redirects every email address to a
// fixed destination, capped at a daily count, so a staging or demo
// deployment can exercise the full dispatch path against real provider
// accounts without contacting real leads. Non-email channels are passed
// through unchanged, since address redirection for phone/LinkedIn/postal
// destinations has no safe equivalent and those channels should simply
// stay disabled in test mode at the config layer instead.
type TestModeDriver struct {
	inner           Driver
	redirectAddress string
	dailyLimit      int
	checker         TestModeChecker
	defaultEnabled  bool

	mu       sync.Mutex
	day      string
	sentToday int
}

// NewTestModeDriver wraps inner so every email send is redirected to
// redirectAddress, up to dailyLimit sends per calendar day (UTC), as long
// as test mode is live. checker is consulted on every Send so an
// operator's runtime toggle takes effect immediately; checker may be nil,
// in which case defaultEnabled (the config-file value at startup) applies
// for the life of the process.
func NewTestModeDriver(inner Driver, redirectAddress string, dailyLimit int, checker TestModeChecker, defaultEnabled bool) *TestModeDriver {
	return &TestModeDriver{inner: inner, redirectAddress: redirectAddress, dailyLimit: dailyLimit, checker: checker, defaultEnabled: defaultEnabled}
}

func (d *TestModeDriver) Send(ctx context.Context, resource domain.Resource, addr Address, content Content) (DispatchResult, error) {
	enabled := d.defaultEnabled
	if d.checker != nil {
		if live, err := d.checker.TestModeEnabled(ctx, d.defaultEnabled); err == nil {
			enabled = live
		} else {
			logger.Error("channels: test mode flag read failed, using default", "error", err.Error())
		}
	}
	if !enabled || resource.Type != domain.ResourceEmailDomain {
		return d.inner.Send(ctx, resource, addr, content)
	}

	today := time.Now().UTC().Format("2006-01-02")
	d.mu.Lock()
	if d.day != today {
		d.day = today
		d.sentToday = 0
	}
	if d.dailyLimit > 0 && d.sentToday >= d.dailyLimit {
		d.mu.Unlock()
		return DispatchResult{}, fmt.Errorf("%w: test-mode daily limit (%d) reached", ErrPermanent, d.dailyLimit)
	}
	d.sentToday++
	d.mu.Unlock()

	logger.Info("channels: test mode redirect", "original", string(addr), "redirect", d.redirectAddress)
	redirected := Content{
		Subject:     "[TEST] " + content.Subject,
		Body:        content.Body,
		TemplateRef: content.TemplateRef,
		ABArmRef:    content.ABArmRef,
		AIModelRef:  content.AIModelRef,
	}
	return d.inner.Send(ctx, resource, Address(d.redirectAddress), redirected)
}

// Ingest delegates to inner when it implements InboundAdapter, so wrapping
// a driver in test mode never hides its webhook-parsing contract.
func (d *TestModeDriver) Ingest(payload []byte) (InboundEvent, bool, error) {
	if adapter, ok := d.inner.(InboundAdapter); ok {
		return adapter.Ingest(payload)
	}
	return InboundEvent{}, false, nil
}
