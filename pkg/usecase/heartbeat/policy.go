package heartbeat

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
)

// ErrPolicyDenied means a Rego policy vetoed a publishing action. The
// candidate is skipped and the denial recorded in the content log.
var ErrPolicyDenied = goerr.New("publish denied by policy")

// guard evaluates operator-supplied Rego policies before every publishing
// action. A nil prepared query allows everything.
type guard struct {
	query *rego.PreparedEvalQuery
}

// newGuard loads all .rego files from policyDir and prepares the
// data.engage query. An empty dir, or a dir with no .rego files, yields a
// guard that allows everything.
func newGuard(ctx context.Context, policyDir string) (*guard, error) {
	if policyDir == "" {
		return &guard{}, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return &guard{}, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query("data.engage"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.Value("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare policy query")
	}
	return &guard{query: &prepared}, nil
}

// publishInput is the document policies evaluate against.
type publishInput struct {
	Kind     model.ActionKind `json:"kind"`
	Target   string           `json:"target"`
	Submolt  string           `json:"submolt,omitempty"`
	Title    string           `json:"title,omitempty"`
	Content  string           `json:"content"`
	Category model.Category   `json:"category,omitempty"`
}

// Check evaluates the policies for one publishing action. Any non-empty
// deny set in the data.engage document blocks the publish.
func (g *guard) Check(ctx context.Context, in publishInput) error {
	if g == nil || g.query == nil {
		return nil
	}

	results, err := g.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return goerr.Wrap(err, "failed to evaluate publish policy")
	}

	for _, result := range results {
		for _, expr := range result.Expressions {
			doc, ok := expr.Value.(map[string]any)
			if !ok {
				continue
			}
			deny, ok := doc["deny"]
			if !ok {
				continue
			}
			reasons, ok := deny.([]any)
			if !ok || len(reasons) == 0 {
				continue
			}
			logging.From(ctx).Warn("publish denied by policy",
				"kind", in.Kind, "target", in.Target, "reasons", reasons)
			return goerr.Wrap(ErrPolicyDenied, "denied",
				goerr.V("kind", in.Kind), goerr.V("reasons", reasons))
		}
	}
	return nil
}
