package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	errx "github.com/chative-food/server/internal/core/error"
)

// funcTool binds a typed function to an eino InvokableTool. Unlike
// utils.NewTool it returns decode failures as errx.MalformedArguments and
// executor errors unwrapped, so the registry can classify them.
type funcTool[I, O any] struct {
	info   *schema.ToolInfo
	params map[string]*schema.ParameterInfo
	fn     func(ctx context.Context, in *I) (O, error)
}

func newTool[I, O any](name, desc string, params map[string]*schema.ParameterInfo, fn func(ctx context.Context, in *I) (O, error)) *funcTool[I, O] {
	return &funcTool[I, O]{
		info: &schema.ToolInfo{
			Name:        name,
			Desc:        desc,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		},
		params: params,
		fn:     fn,
	}
}

func (t *funcTool[I, O]) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *funcTool[I, O]) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	in := new(I)
	if argumentsInJSON != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), in); err != nil {
			return "", errx.MalformedArguments(t.info.Name, err)
		}
	}

	out, err := t.fn(ctx, in)
	if err != nil {
		return "", err
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal %s result: %w", t.info.Name, err)
	}
	return string(b), nil
}

func (t *funcTool[I, O]) name() string {
	return t.info.Name
}

func (t *funcTool[I, O]) parameters() map[string]*schema.ParameterInfo {
	return t.params
}

// boundTool is what the registry stores.
type boundTool interface {
	tool.InvokableTool
	name() string
	parameters() map[string]*schema.ParameterInfo
}
