package rhi

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gogpu/rhi"

func (e *Executor) startSubmitSpan(ctx context.Context, bufs []*CommandBuffer) (context.Context, trace.Span) {
	commands := 0
	for _, b := range bufs {
		commands += b.numCommands
	}
	return e.tracer.Start(ctx, "rhi.Submit",
		trace.WithAttributes(
			attribute.String("rhi.device", e.dev.Name()),
			attribute.Int("rhi.buffers", len(bufs)),
			attribute.Int("rhi.commands", commands),
		))
}

func (e *Executor) startTranslateSpan(ctx context.Context, b *CommandBuffer, whole bool) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "rhi.Translate",
		trace.WithAttributes(
			attribute.String("rhi.buffer", b.name),
			attribute.Int("rhi.commands", b.numCommands),
			attribute.Bool("rhi.whole_buffer", whole),
		))
}

// endSpan records err on span. The caller still ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
