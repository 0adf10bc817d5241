package kms

import (
	"context"
	"time"

	"github.com/OriginVault/quantum-safe-tls-proxy/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedClient wraps a Client with tracing and structured
// logging, following the decorator used throughout this module's
// domain packages.
type InstrumentedClient struct {
	next   Client
	tracer trace.Tracer
}

func NewInstrumentedClient(next Client) *InstrumentedClient {
	return &InstrumentedClient{
		next:   next,
		tracer: otel.Tracer("pkg/kms"),
	}
}

func (c *InstrumentedClient) Decrypt(ctx context.Context, name string, ciphertext []byte) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "kms.Client.Decrypt",
		trace.WithAttributes(attribute.String("kms.name", name)))
	defer span.End()

	start := time.Now()
	plaintext, err := c.next.Decrypt(ctx, name, ciphertext)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "kms decrypt failed", "error", err, "name", name)
		return nil, err
	}

	logger.L().DebugContext(ctx, "kms decrypted", "name", name, "duration", time.Since(start).String())
	return plaintext, nil
}

func (c *InstrumentedClient) GetSecret(ctx context.Context, name string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "kms.Client.GetSecret",
		trace.WithAttributes(attribute.String("kms.name", name)))
	defer span.End()

	start := time.Now()
	blob, err := c.next.GetSecret(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "kms get secret failed", "error", err, "name", name)
		return nil, err
	}

	logger.L().DebugContext(ctx, "kms secret retrieved", "name", name, "duration", time.Since(start).String())
	return blob, nil
}
