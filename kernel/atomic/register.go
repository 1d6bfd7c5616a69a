package atomic

import (
	"github.com/flowkit/kernel/kernel"
	"github.com/flowkit/kernel/kernel/model"
)

// RegisterAll binds the agent, http, and tool executor types onto f. It is
// the external registration step kernel.NewFactory's doc comment calls
// out: these types import kernel, so kernel itself cannot import them
// without a cycle. Call this once at the composition root, after
// kernel.NewFactory and before the first Factory.Create.
func RegisterAll(f *kernel.Factory, chat model.ChatModel, tools *ToolRegistry) {
	if tools == nil {
		tools = NewToolRegistry()
	}
	f.RegisterAtomic(kernel.TypeAgent, newAgentExecutor(chat, tools))
	f.RegisterAtomic(kernel.TypeHTTP, newHTTPExecutor())
	f.RegisterAtomic(kernel.TypeTool, newToolExecutor(tools))
}
