package agent

import "context"

// AuditSink durably mirrors action records. Errors are logged by the
// executor and never alter the session result.
type AuditSink interface {
	RecordAction(ctx context.Context, session Session, record ActionRecord) error
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, session Session, record ActionRecord) error

func (f AuditSinkFunc) RecordAction(ctx context.Context, session Session, record ActionRecord) error {
	return f(ctx, session, record)
}

type nopAuditSink struct{}

func (nopAuditSink) RecordAction(context.Context, Session, ActionRecord) error { return nil }
