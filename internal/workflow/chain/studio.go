// Package chain 基于 eino compose 编排的生成链路
package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	llmctx "flashflow-studio/internal/domain/service"
	wfmodel "flashflow-studio/internal/workflow/model"
	wfnode "flashflow-studio/internal/workflow/node"
	workflowport "flashflow-studio/internal/workflow/port"
	workflowprompt "flashflow-studio/internal/workflow/prompt"
	"flashflow-studio/pkg/logger"
)

// 链路支持的操作
const (
	OpGenerate = "generate"
	OpRefine   = "refine"
	OpScore    = "score"
	OpImprove  = "improve_section"
)

type operationSpec struct {
	prompt     workflowprompt.PromptID
	schemaName string
	schema     func() map[string]any
}

var operations = map[string]operationSpec{
	OpGenerate: {prompt: workflowprompt.PromptStudioGenerateV1, schemaName: "studio_generate", schema: generateJSONSchema},
	OpRefine:   {prompt: workflowprompt.PromptStudioRefineV1, schemaName: "studio_refine", schema: refineJSONSchema},
	OpScore:    {prompt: workflowprompt.PromptStudioScoreV1, schemaName: "studio_score", schema: scoreJSONSchema},
	OpImprove:  {prompt: workflowprompt.PromptStudioImproveV1, schemaName: "studio_improve_section", schema: improveJSONSchema},
}

// StudioChain 生成、精修、评分、局部改写共用的单轮 LLM 链路
type StudioChain struct {
	factory  workflowport.ChatModelFactory
	registry *workflowprompt.Registry

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.StudioInput, *schema.Message]
	chainErr  error
}

func NewStudioChain(factory workflowport.ChatModelFactory) *StudioChain {
	return &StudioChain{factory: factory, registry: workflowprompt.NewRegistry()}
}

func (c *StudioChain) Invoke(ctx context.Context, in *wfmodel.StudioInput) (*schema.Message, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if _, ok := operations[in.Operation]; !ok {
		return nil, fmt.Errorf("unknown studio operation: %s", in.Operation)
	}

	chain, err := c.getChain()
	if err != nil {
		return nil, err
	}
	return chain.Invoke(ctx, in)
}

type studioChainState struct {
	In       *wfmodel.StudioInput
	Spec     operationSpec
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *StudioChain) getChain() (compose.Runnable[*wfmodel.StudioInput, *schema.Message], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *StudioChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.StudioInput, *schema.Message], error) {
	chain := compose.NewChain[*wfmodel.StudioInput, *schema.Message]()

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, in *wfmodel.StudioInput) (*studioChainState, error) {
			if in == nil {
				return nil, fmt.Errorf("input is nil")
			}
			spec, ok := operations[in.Operation]
			if !ok {
				return nil, fmt.Errorf("unknown studio operation: %s", in.Operation)
			}
			return &studioChainState{In: in, Spec: spec}, nil
		}),
		compose.WithNodeName("studio.init"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *studioChainState) (*studioChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			tpl, err := c.registry.ChatTemplate(st.Spec.prompt)
			if err != nil {
				return nil, err
			}
			msgs, err := tpl.Format(ctx, st.In.Vars)
			if err != nil {
				return nil, fmt.Errorf("failed to format prompt %s: %w", st.Spec.prompt, err)
			}
			st.Messages = msgs
			return st, nil
		}),
		compose.WithNodeName("studio.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *studioChainState) (*studioChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			provider := strings.TrimSpace(st.In.Provider)
			ctx = llmctx.WithOperationProvider(ctx, st.In.Operation, provider)
			chatModel, err := c.factory.Get(ctx, provider)
			if err != nil {
				return nil, err
			}

			outMsg, err := chatModel.Generate(ctx, st.Messages, buildModelOptions(st.In, st.Spec, true)...)
			if err != nil && wfnode.IsResponseFormatUnsupportedError(err) {
				logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
					"operation", st.In.Operation,
					"provider", provider,
					"model", strings.TrimSpace(st.In.Model),
					"error", err.Error(),
				)
				outMsg, err = chatModel.Generate(ctx, st.Messages, buildModelOptions(st.In, st.Spec, false)...)
			}
			if err != nil {
				return nil, err
			}
			if outMsg == nil {
				return nil, fmt.Errorf("empty llm response")
			}
			st.OutMsg = outMsg
			return st, nil
		}),
		compose.WithNodeName("studio.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *studioChainState) (*schema.Message, error) {
			if st == nil || st.OutMsg == nil {
				return nil, fmt.Errorf("state is nil")
			}
			return st.OutMsg, nil
		}),
		compose.WithNodeName("studio.finalize"),
	)

	return chain.Compile(ctx)
}

func buildModelOptions(in *wfmodel.StudioInput, spec operationSpec, enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 4)
	if in == nil {
		return opts
	}
	if in.Temperature != nil {
		opts = append(opts, model.WithTemperature(*in.Temperature))
	}
	if in.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*in.MaxTokens))
	}
	if m := strings.TrimSpace(in.Model); m != "" {
		opts = append(opts, model.WithModel(m))
	}
	if enableSchema && spec.schema != nil {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   spec.schemaName,
					"strict": false,
					"schema": spec.schema(),
				},
			},
		}))
	}
	return opts
}
