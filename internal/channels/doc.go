// Package channels defines the uniform Driver abstraction the Outreach
// Scheduler and Reply Router dispatch through, per spec §4.12, plus the
// per-channel implementations (email, sms, voice, linkedin, mail) and a
// test-mode decorator that, while test mode is enabled, redirects email
// sends to a fixed destination under a daily cap; sends on the other
// channels pass through it unchanged.
//
// The core dispatch subsystem is channel-agnostic above this package: the
// Scheduler selects a Resource and content, then calls Driver.Send with
// both, uninterested in how a given channel's wire protocol works.
package channels
