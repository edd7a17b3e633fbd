package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// OperationRecord captures all information about one API operation for
// audit logging: who acted, which upstream service was touched, and how
// it went.
//
// # Privacy Considerations
//
// The UserEmail field contains PII. When logging, consider:
//   - Using UserDomain() to get only the domain for metrics/general logs
//   - Only logging full email in audit-specific log streams
//   - Ensuring audit logs have appropriate access controls
type OperationRecord struct {
	// Operation is the API operation name (login, oauth_callback, list_emails)
	Operation string

	// User identity (from OAuth)
	UserEmail string

	// Upstream service touched (gmail, oauth2)
	Service string

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// UserDomain returns the domain portion of the user's email for lower-cardinality logging.
func (r *OperationRecord) UserDomain() string {
	return ExtractUserDomain(r.UserEmail)
}

// Status returns "success" or "error" based on the Success field.
func (r *OperationRecord) Status() string {
	if r.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for structured logging.
//
// # Cardinality
//
// This function uses cardinality-controlled values (user_domain)
// for metrics-compatible logging. For full audit logging, use LogAuditAttrs.
func (r *OperationRecord) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("operation", r.Operation),
		slog.String("user_domain", r.UserDomain()),
		slog.Duration("duration", r.Duration),
		slog.Bool("success", r.Success),
	}

	if r.Service != "" {
		attrs = append(attrs, slog.String("service", r.Service))
	}
	if r.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", r.TraceID))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}

	return attrs
}

// LogAuditAttrs returns slog attributes for full audit logging.
// This includes the full user email for compliance/audit purposes.
//
// # Security Warning
//
// This method includes PII (full email). Ensure audit logs are:
//   - Stored securely with appropriate access controls
//   - Not exposed to general monitoring dashboards
//   - Retained according to compliance requirements
func (r *OperationRecord) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("operation", r.Operation),
		slog.String("user", r.UserEmail),
		slog.Duration("duration", r.Duration),
		slog.Bool("success", r.Success),
	}

	if r.Service != "" {
		attrs = append(attrs, slog.String("service", r.Service))
	}
	if r.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", r.TraceID))
	}
	if r.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", r.SpanID))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("error", r.Error))
	}

	return attrs
}

// NewOperationRecord creates a new OperationRecord with timing started.
// Call Complete() when the operation finishes.
func NewOperationRecord(operation string) *OperationRecord {
	return &OperationRecord{
		Operation: operation,
		StartTime: time.Now(),
	}
}

// WithUser sets the user identity information.
func (r *OperationRecord) WithUser(email string) *OperationRecord {
	r.UserEmail = email
	return r
}

// WithService sets the upstream service touched by the operation.
func (r *OperationRecord) WithService(service string) *OperationRecord {
	r.Service = service
	return r
}

// WithSpanContext extracts trace context from the current span.
func (r *OperationRecord) WithSpanContext(ctx context.Context) *OperationRecord {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.TraceID = span.SpanContext().TraceID().String()
		r.SpanID = span.SpanContext().SpanID().String()
	}
	return r
}

// Complete marks the operation as completed and calculates duration.
// Returns the same OperationRecord for method chaining.
func (r *OperationRecord) Complete(success bool, err error) *OperationRecord {
	r.Duration = time.Since(r.StartTime)
	r.Success = success
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// CompleteWithError marks the operation as failed with the given error.
func (r *OperationRecord) CompleteWithError(err error) *OperationRecord {
	return r.Complete(false, err)
}

// CompleteSuccess marks the operation as successful.
func (r *OperationRecord) CompleteSuccess() *OperationRecord {
	return r.Complete(true, nil)
}

// AuditLogger provides structured audit logging for API operations.
// It wraps slog.Logger with convenience methods for logging operations.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
// By default, PII is not included in logs (anonymized identifiers are used instead).
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: false,
		enabled:    true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// SetIncludePII sets whether to include full email addresses in audit logs.
func (al *AuditLogger) SetIncludePII(include bool) {
	al.includePII = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogOperation logs an API operation using the standard log attributes.
// This is suitable for general operational logging with cardinality controls.
// If the logger is configured with IncludePII, full user emails are logged;
// otherwise, only domain-based anonymized identifiers are used.
func (al *AuditLogger) LogOperation(r *OperationRecord) {
	if !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = r.LogAuditAttrs()
	} else {
		attrs = r.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if r.Success {
		al.logger.Info("operation_completed", args...)
	} else {
		al.logger.Warn("operation_failed", args...)
	}
}

// LogAudit logs an API operation with full audit details.
// This includes PII (full email addresses) for compliance/audit purposes.
// SECURITY: Ensure audit logs are routed to secure storage with appropriate access controls.
//
// Note: This method respects the enabled flag but always includes PII when
// called, regardless of the IncludePII configuration. Use LogOperation for
// configuration-aware logging.
func (al *AuditLogger) LogAudit(r *OperationRecord) {
	if !al.enabled {
		return
	}

	attrs := r.LogAuditAttrs()
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	al.logger.Info("operation_audit", args...)
}
