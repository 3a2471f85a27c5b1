package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

const (
	operationLogin  = "login"
	operationLogout = "logout"
)

// observeOperation records the outcome of a client operation on session.
// The token itself is never logged; only its identifying claims are.
func (c *Client) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	session Maybe[SessionToken],
	err error,
) {
	if c == nil {
		return
	}
	elapsed := time.Since(startedAt)
	status := "success"
	if err != nil {
		status = "failure"
	}
	backend := c.config.Backend.NormalizedDriver()

	fields := sessionFields(c.sessionKey(), session)
	fields["event_type"] = operation
	fields["status"] = status
	fields["backend"] = backend
	fields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
		"backend":   backend,
	}
	c.recordCounter(ctx, "session."+operation+".total", 1, tags)
	c.recordHistogram(ctx, "session."+operation+".duration_ms", float64(elapsed.Milliseconds()), tags)

	if err != nil {
		c.logError(ctx, operation+" failed", fields)
		return
	}
	c.logInfo(ctx, operation+" succeeded", fields)
}

// sessionFields describes session for logs: its state and, when a token is
// present, the subject, token id and expiry.
func sessionFields(key string, session Maybe[SessionToken]) map[string]any {
	fields := map[string]any{
		"key":           key,
		"session_state": session.State().String(),
	}
	token, ok := session.Get()
	if !ok {
		return fields
	}
	if token.Claims.Subject != "" {
		fields["subject"] = token.Claims.Subject
	}
	if token.Claims.JTI != "" {
		fields["jti"] = token.Claims.JTI
	}
	if token.HasExpiry() {
		fields["expires_at"] = token.Claims.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return fields
}

func (c *Client) logInfo(ctx context.Context, message string, fields map[string]any) {
	c.logWithLevel(ctx, "info", message, fields)
}

func (c *Client) logError(ctx context.Context, message string, fields map[string]any) {
	c.logWithLevel(ctx, "error", message, fields)
}

func (c *Client) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logger := c.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (c *Client) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if c == nil || c.metricsRecorder == nil {
		return
	}
	c.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (c *Client) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if c == nil || c.metricsRecorder == nil {
		return
	}
	c.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
