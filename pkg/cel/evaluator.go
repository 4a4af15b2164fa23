// Package cel evaluates CEL expressions against rating records. Stages use
// it to derive lookup keys, such as the calendar group for holiday checks,
// from record fields.
package cel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"ratingcore/pkg/models"
)

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("service_id", cel.StringType),
		cel.Variable("a_number", cel.StringType),
		cel.Variable("b_number", cel.StringType),
		cel.Variable("zone", cel.StringType),
		cel.Variable("event_start", cel.TimestampType),
		cel.Variable("packets", cel.ListType(cel.MapType(cel.StringType, cel.DynType))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

// Expression is a compiled CEL program that yields a string. It is safe
// for concurrent use.
type Expression struct {
	source  string
	program cel.Program
}

func (x *Expression) String() string {
	return x.source
}

// CompileStringExpression compiles expression and checks that it returns a
// string. Dynamic results, such as packet map fields, are checked when
// evaluated.
func (e *Evaluator) CompileStringExpression(expression string) (*Expression, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if out := ast.OutputType(); out != cel.StringType && out != cel.DynType {
		return nil, fmt.Errorf("expression must return string, got %v", out)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Expression{source: expression, program: program}, nil
}

func (x *Expression) EvalString(ctx context.Context, record *models.RatingRecord) (string, error) {
	result, _, err := x.program.ContextEval(ctx, recordVars(record))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	s, ok := result.Value().(string)
	if !ok {
		return "", fmt.Errorf("CEL expression did not return string, got %T", result.Value())
	}
	return s, nil
}

func recordVars(r *models.RatingRecord) map[string]interface{} {
	packets := make([]map[string]interface{}, 0, len(r.ChargePackets))
	for _, p := range r.ChargePackets {
		packets = append(packets, map[string]interface{}{
			"rate_plan":      p.RatePlan,
			"zone":           p.Zone,
			"time_model":     p.TimeModel,
			"price_model":    p.PriceModel,
			"time_splitting": string(p.TimeSplitting),
		})
	}

	eventStart := r.EventStart
	if eventStart.IsZero() {
		eventStart = time.Unix(0, 0).UTC()
	}

	return map[string]interface{}{
		"id":          r.ID,
		"service_id":  r.ServiceID,
		"a_number":    r.ANumber,
		"b_number":    r.BNumber,
		"zone":        r.Zone,
		"event_start": eventStart,
		"packets":     packets,
	}
}
