// Package prebuilt provides the agent building blocks shared by the fab workflow,
// the knowledge router and the document chatbot.
//
// # Tool Agent
//
// ToolAgent is a ReAct style loop compiled as a two node graph ("agent" and
// "tools"). The model either answers or requests tool calls; results are fed back
// as tool messages until the model stops calling tools or the iteration limit is hit.
//
//	agent, err := prebuilt.NewToolAgent(model,
//		"너는 반도체 포토(Photo) 공정 검사 전문가야.",
//		tool.InspectionTools("photo"),
//		prebuilt.WithMaxIterations(5),
//	)
//	answer, err := agent.Run(ctx, "LOT12 photo 검사해줘 (선택된 공정: photo)")
//
// # Forced Tool Calls
//
// CallTool forces the model to answer through one function and returns its raw
// JSON arguments. It is used for structured classification:
//
//	args, err := prebuilt.CallTool(ctx, model, messages, llms.FunctionDefinition{
//		Name:       "classify",
//		Parameters: schema,
//	})
//
// Complete is a single system+user model call returning the text.
package prebuilt
