package tracing

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/execution"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "daedalus/engine"

// StartRun opens a run-level span and returns the context carrying it plus
// an execution.RunTrace handle wrapping it. Uses the globally configured
// tracer provider; when none is set the otel API yields no-op spans, which
// keeps the handle safe without further checks.
func StartRun(ctx context.Context, runID, workflowName string) (context.Context, execution.RunTrace) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "engine.run",
		trace.WithAttributes(
			attribute.String("workflow.run_id", runID),
			attribute.String("workflow.name", workflowName),
		))
	return ctx, &runTrace{tracer: tracer, span: span}
}

type runTrace struct {
	tracer trace.Tracer
	span   trace.Span
}

func (r *runTrace) StartNode(ctx context.Context, nodeName, nodeType string) (context.Context, execution.NodeTrace) {
	ctx, span := r.tracer.Start(ctx, "engine.node",
		trace.WithAttributes(
			attribute.String("node.name", nodeName),
			attribute.String("node.type", nodeType),
		))
	return ctx, &nodeTrace{span: span}
}

func (r *runTrace) End(err error) {
	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	} else {
		r.span.SetStatus(codes.Ok, "run completed")
	}
	r.span.End()
}

type nodeTrace struct {
	span trace.Span
}

func (n *nodeTrace) SetBranchSizes(sizes []int) {
	attrs := make([]int64, len(sizes))
	for i, s := range sizes {
		attrs[i] = int64(s)
	}
	n.span.SetAttributes(attribute.Int64Slice("node.branch_sizes", attrs))
}

func (n *nodeTrace) End(err error) {
	if err != nil {
		n.span.RecordError(err)
		n.span.SetStatus(codes.Error, err.Error())
	} else {
		n.span.SetStatus(codes.Ok, "node completed")
	}
	n.span.End()
}
